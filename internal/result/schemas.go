package result

// Validation schemas, draft 2020-12.
var schemas = map[Kind]string{
	KindLecture: `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["title", "sections"],
  "properties": {
    "title": {"type": "string", "minLength": 1},
    "summary": {"type": "string"},
    "sections": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["heading", "body"],
        "properties": {
          "heading": {"type": "string", "minLength": 1},
          "body": {"type": "string", "minLength": 1}
        }
      }
    }
  }
}`,

	KindQuiz: `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["questions"],
  "properties": {
    "questions": {
      "type": "array",
      "minItems": 1,
      "items": {"type": "string", "minLength": 1}
    }
  }
}`,

	KindQuizEvaluation: `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["score", "feedback"],
  "properties": {
    "score": {"type": "integer", "minimum": 0, "maximum": 100},
    "feedback": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["index", "sub_score", "comment"],
        "properties": {
          "index": {"type": "integer", "minimum": 0},
          "sub_score": {"type": "integer", "minimum": 0, "maximum": 10},
          "comment": {"type": "string"}
        }
      }
    }
  }
}`,

	KindInterviewFeedback: `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["overall", "communication", "technical", "confidence", "strengths", "improvements"],
  "properties": {
    "overall": {"type": "integer", "minimum": 0, "maximum": 100},
    "communication": {"type": "integer", "minimum": 0, "maximum": 10},
    "technical": {"type": "integer", "minimum": 0, "maximum": 10},
    "confidence": {"type": "integer", "minimum": 0, "maximum": 10},
    "strengths": {"type": "array", "items": {"type": "string"}},
    "improvements": {"type": "array", "items": {"type": "string"}},
    "summary": {"type": "string"}
  }
}`,
}
