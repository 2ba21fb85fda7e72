package tutor

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/eduvoice/eduvoice/internal/provider"
)

// Response schemas in the OpenAPI subset Gemini accepts for responseSchema.
// The stricter draft 2020-12 schemas in package result still have the final
// word on every output.
var (
	lectureSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "title": {"type": "string"},
    "summary": {"type": "string"},
    "sections": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {"heading": {"type": "string"}, "body": {"type": "string"}},
        "required": ["heading", "body"]
      }
    }
  },
  "required": ["title", "sections"]
}`)

	quizSchema = json.RawMessage(`{
  "type": "object",
  "properties": {"questions": {"type": "array", "items": {"type": "string"}}},
  "required": ["questions"]
}`)

	evaluationSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "score": {"type": "integer", "minimum": 0, "maximum": 100},
    "feedback": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "index": {"type": "integer"},
          "sub_score": {"type": "integer", "minimum": 0, "maximum": 10},
          "comment": {"type": "string"}
        },
        "required": ["index", "sub_score", "comment"]
      }
    }
  },
  "required": ["score", "feedback"]
}`)

	interviewSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "overall": {"type": "integer", "minimum": 0, "maximum": 100},
    "communication": {"type": "integer", "minimum": 0, "maximum": 10},
    "technical": {"type": "integer", "minimum": 0, "maximum": 10},
    "confidence": {"type": "integer", "minimum": 0, "maximum": 10},
    "strengths": {"type": "array", "items": {"type": "string"}},
    "improvements": {"type": "array", "items": {"type": "string"}},
    "summary": {"type": "string"}
  },
  "required": ["overall", "communication", "technical", "confidence", "strengths", "improvements"]
}`)
)

const tutorPersona = "You are a patient university tutor. Answer only with JSON matching the response schema."

func lecturePrompt(topic, level string) provider.Prompt {
	user := fmt.Sprintf("Write a short lecture on %q.", topic)
	if level != "" {
		user += fmt.Sprintf(" Pitch it at %s level.", level)
	}
	user += " Split it into 3 to 6 sections, each with a heading and a body of a few paragraphs."
	return provider.Prompt{System: tutorPersona, User: user, Schema: lectureSchema}
}

func quizPrompt(topic string, count int) provider.Prompt {
	return provider.Prompt{
		System: tutorPersona,
		User: fmt.Sprintf("Write exactly %d open-ended exam questions on %q. "+
			"Each question must be answerable in a few sentences.", count, topic),
		Schema: quizSchema,
	}
}

func evaluationPrompt(questions []string, answers map[int]string) provider.Prompt {
	var b strings.Builder
	b.WriteString("Grade the following exam. Give each answer a sub_score from 0 to 10 and a one-sentence comment, ")
	b.WriteString("then an overall score from 0 to 100. Return one feedback entry per question, using its index.\n\n")
	for i, q := range questions {
		a := strings.TrimSpace(answers[i])
		if a == "" {
			a = "(no answer)"
		}
		fmt.Fprintf(&b, "Question %d: %s\nAnswer %d: %s\n\n", i, q, i, a)
	}
	return provider.Prompt{System: tutorPersona, User: b.String(), Schema: evaluationSchema}
}

func interviewPrompt(role string, transcript []Turn) provider.Prompt {
	var b strings.Builder
	fmt.Fprintf(&b, "Assess this mock job interview for the role %q. ", role)
	b.WriteString("Rate communication, technical depth and confidence from 0 to 10, give an overall score from 0 to 100, ")
	b.WriteString("and list concrete strengths and improvements.\n\nTranscript:\n")
	for _, t := range transcript {
		fmt.Fprintf(&b, "%s: %s\n", t.Speaker, strings.TrimSpace(t.Text))
	}
	return provider.Prompt{System: tutorPersona, User: b.String(), Schema: interviewSchema}
}
