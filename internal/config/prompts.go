package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Default answer prompts.
const (
	DefaultAnswerSystem = "You are a smart AI model. Answer this question correctly and keep it as short and concise as possible, prioritizing answering questions correctly."

	DefaultAnswerTemplate = `You are a smart AI assistant that answers questions using data returned by a search engine.

Guidelines:
	1. You will be provided with a question by the user, you must answer that question, and nothing else.
	2. Your answer should come directly from the provided context from the search engine.
	3. Do not make up any information not provided in the context.
	4. If the provided question does not contain the answers, respond with 'I am sorry, but I am unable to answer that question.'
	5. Be aware that some chunks in the context may be irrelevant, incomplete, and/or poorly formatted.

Here is the provided context:
{context}

Here is the question: {question}

Your response: `
)

// Default judge prompts.
const (
	DefaultJudgeSystem = "You are a teacher tasked with determining whether a student's answer to a question was correct, based on a set of possible correct answers."

	DefaultJudgeTemplate = `Question: {question}
Student's Response: {student_response}
Possible Correct Answers: {correct_answers}
Your response should be a valid JSON in the following format:
{
"explanation": "A short explanation of why the student's answer was correct or incorrect.",
"score": true or false (boolean)
}`
)

// Prompts holds the prompt text for answering and judging.
type Prompts struct {
	AnswerSystem   string `yaml:"answer_system"`
	AnswerTemplate string `yaml:"answer_template"`
	JudgeSystem    string `yaml:"judge_system"`
	JudgeTemplate  string `yaml:"judge_template"`
}

// DefaultPrompts returns the built-in prompts.
func DefaultPrompts() Prompts {
	return Prompts{
		AnswerSystem:   DefaultAnswerSystem,
		AnswerTemplate: DefaultAnswerTemplate,
		JudgeSystem:    DefaultJudgeSystem,
		JudgeTemplate:  DefaultJudgeTemplate,
	}
}

// LoadPrompts returns the default prompts overlaid with any non-empty
// fields from the YAML file at path. An empty path returns the defaults.
func LoadPrompts(path string) (Prompts, error) {
	prompts := DefaultPrompts()
	if path == "" {
		return prompts, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Prompts{}, fmt.Errorf("read prompts file: %w", err)
	}

	var override Prompts
	if err := yaml.Unmarshal(data, &override); err != nil {
		return Prompts{}, fmt.Errorf("parse prompts file %s: %w", path, err)
	}

	if override.AnswerSystem != "" {
		prompts.AnswerSystem = override.AnswerSystem
	}
	if override.AnswerTemplate != "" {
		prompts.AnswerTemplate = override.AnswerTemplate
	}
	if override.JudgeSystem != "" {
		prompts.JudgeSystem = override.JudgeSystem
	}
	if override.JudgeTemplate != "" {
		prompts.JudgeTemplate = override.JudgeTemplate
	}
	return prompts, nil
}
