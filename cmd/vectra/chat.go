// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/kadirpekel/vectra/pkg/rag"
)

// ChatCmd runs an interactive question-answering session. Answers are
// streamed, and the shared session id keeps conversation memory across
// turns. Reading from a pipe works too: each input line is answered
// without prompt decoration.
type ChatCmd struct {
	Session string `help:"Session id for conversation memory." default:"chat"`
}

func (c *ChatCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}

	engine, err := rag.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	defer engine.Close()

	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	if interactive {
		fmt.Println("Type your questions below. Commands:")
		fmt.Println("  /quit or /exit - End the session")
		fmt.Println("  /clear - Start a fresh session")
		fmt.Println()
	}

	session := c.Session
	reader := bufio.NewReader(os.Stdin)

	for {
		if ctx.Err() != nil {
			return nil
		}
		if interactive {
			fmt.Print("You: ")
		}

		input, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Println()
				return nil
			}
			return fmt.Errorf("failed to read input: %w", err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			switch input {
			case "/quit", "/exit":
				fmt.Println("Bye!")
				return nil
			case "/clear":
				// History stores only append through their interface, so
				// a fresh session id is what starts over.
				session = fmt.Sprintf("chat-%d", time.Now().UnixNano())
				fmt.Println("Started a fresh session")
				continue
			default:
				fmt.Printf("Unknown command: %s\n", input)
				continue
			}
		}

		if interactive {
			fmt.Print("\nAnswer: ")
		}
		if err := streamAnswer(ctx, engine, input, session); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Printf("Error: %v\n", err)
		}
		fmt.Println()
	}
}

// streamAnswer runs one streamed query and prints deltas as they come.
func streamAnswer(ctx context.Context, engine *rag.Engine, question, session string) error {
	chunks, err := engine.QueryStream(ctx, question, rag.QueryOptions{SessionID: session})
	if err != nil {
		return err
	}
	for chunk := range chunks {
		if chunk.Err != nil {
			fmt.Println()
			return chunk.Err
		}
		fmt.Print(chunk.Delta)
	}
	fmt.Println()
	return nil
}
