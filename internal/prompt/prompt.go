// Package prompt holds the grounded question-answering templates. The
// wording and the example set are part of the contract with the model:
// changing them changes how reliably it refuses, so every change bumps Version.
package prompt

import (
	"fmt"
	"strings"
)

const Version = "v1"

type Language string

const (
	English    Language = "en"
	Portuguese Language = "pt"
)

const (
	RefusalEN = "I don't have the necessary information to answer your question."
	RefusalPT = "Não tenho informações necessárias para responder sua pergunta."
)

const templateEN = `
CONTEXT:
%[1]s

RULES:
- Answer only based on the CONTEXT.
- If the information is not explicitly in the CONTEXT, answer:
  "%[3]s"
- Never make things up or use outside knowledge.
- Never give opinions or interpretations beyond what is written.

EXAMPLES OF OUT-OF-CONTEXT QUESTIONS:
Question: "What is the capital of France?"
Answer: "%[3]s"

Question: "How many customers do we have in 2024?"
Answer: "%[3]s"

Question: "Do you think this is good or bad?"
Answer: "%[3]s"

USER QUESTION:
%[2]s

ANSWER THE "USER QUESTION"
`

const templatePT = `
CONTEXTO:
%[1]s

REGRAS:
- Responda somente com base no CONTEXTO.
- Se a informação não estiver explicitamente no CONTEXTO, responda:
  "%[3]s"
- Nunca invente ou use conhecimento externo.
- Nunca produza opiniões ou interpretações além do que está escrito.

EXEMPLOS DE PERGUNTAS FORA DO CONTEXTO:
Pergunta: "Qual é a capital da França?"
Resposta: "%[3]s"

Pergunta: "Quantos clientes temos em 2024?"
Resposta: "%[3]s"

Pergunta: "Você acha isso bom ou ruim?"
Resposta: "%[3]s"

PERGUNTA DO USUÁRIO:
%[2]s

RESPONDA A "PERGUNTA DO USUÁRIO"
`

type template struct {
	format  string
	refusal string
}

var templates = map[Language]template{
	English:    {format: templateEN, refusal: RefusalEN},
	Portuguese: {format: templatePT, refusal: RefusalPT},
}

// ParseLanguage accepts "en" or "pt" in any case.
func ParseLanguage(s string) (Language, error) {
	lang := Language(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := templates[lang]; !ok {
		return "", fmt.Errorf("unsupported prompt language %q", s)
	}
	return lang, nil
}

// Refusal is the exact sentence the model must answer with when the context lacks the answer.
func Refusal(lang Language) string {
	return lookup(lang).refusal
}

// Build renders the grounded prompt. Context and question are inserted verbatim.
func Build(lang Language, context, question string) string {
	t := lookup(lang)
	return fmt.Sprintf(t.format, context, question, t.refusal)
}

func lookup(lang Language) template {
	if t, ok := templates[lang]; ok {
		return t
	}
	return templates[English]
}
