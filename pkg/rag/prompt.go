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

package rag

import (
	"strings"

	"github.com/kadirpekel/vectra/pkg/history"
)

// systemInstruction accompanies every answer generation request.
const systemInstruction = "You are a helpful RAG assistant."

// defaultQueryPrompt is the built-in instruction used when no custom
// template is configured.
const defaultQueryPrompt = "Answer the question using the provided summaries and cite titles/sections/pages where relevant."

// buildPrompt assembles the generation prompt. A custom template gets
// {{context}} and {{question}} substituted everywhere they occur; the
// built-in layout is instruction, context, question. Conversation
// history, when present, is prepended as "ROLE: content" lines.
func buildPrompt(template, question string, parts []ContextPart, messages []history.ChatMessage) string {
	context := renderContext(parts)

	var prompt string
	if template != "" {
		prompt = strings.ReplaceAll(template, "{{context}}", context)
		prompt = strings.ReplaceAll(prompt, "{{question}}", question)
	} else {
		segments := []string{defaultQueryPrompt}
		if context != "" {
			segments = append(segments, context)
		}
		segments = append(segments, "Question: "+question)
		prompt = strings.Join(segments, "\n\n")
	}

	if len(messages) > 0 {
		var sb strings.Builder
		sb.WriteString("Conversation:\n")
		for _, m := range messages {
			sb.WriteString(strings.ToUpper(m.Role))
			sb.WriteString(": ")
			sb.WriteString(m.Content)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
		prompt = sb.String() + prompt
	}

	return prompt
}

// renderContext lays context parts out as header/body blocks
// separated by blank lines.
func renderContext(parts []ContextPart) string {
	blocks := make([]string, 0, len(parts))
	for _, p := range parts {
		if p.Header != "" {
			blocks = append(blocks, p.Header+"\n"+p.Body)
		} else {
			blocks = append(blocks, p.Body)
		}
	}
	return strings.Join(blocks, "\n\n")
}
