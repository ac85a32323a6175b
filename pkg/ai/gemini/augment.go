package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

const keywordPromptTemplate = `You are a text analyzer. Extract the %d most important keywords or key phrases from the content below. Respond with one keyword per line and nothing else.

Content:
%s`

const questionPromptTemplate = `You are a text analyzer. Propose %d questions that the content below can answer. Respond with one question per line and nothing else.

Content:
%s`

// ExtractKeywords asks the model for the n most relevant keywords of the
// given content.
func (c *Client) ExtractKeywords(ctx context.Context, content string, n int) ([]string, error) {
	if n <= 0 || content == "" {
		return nil, nil
	}

	prompt := fmt.Sprintf(keywordPromptTemplate, n, content)
	response, err := c.generate(ctx, []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	})
	if err != nil {
		return nil, fmt.Errorf("extracting keywords: %w", err)
	}

	return parseLines(response, n), nil
}

// ProposeQuestions asks the model for n questions the content can answer.
func (c *Client) ProposeQuestions(ctx context.Context, content string, n int) ([]string, error) {
	if n <= 0 || content == "" {
		return nil, nil
	}

	prompt := fmt.Sprintf(questionPromptTemplate, n, content)
	response, err := c.generate(ctx, []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	})
	if err != nil {
		return nil, fmt.Errorf("proposing questions: %w", err)
	}

	return parseLines(response, n), nil
}
