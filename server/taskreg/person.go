package taskreg

import (
	"fmt"

	"github.com/pkg/errors"
)

func requirePerson(args Args) error {
	if args.Name == "" {
		return errors.New("person name is required")
	}
	return nil
}

// personLabel renders "Name, Title at Company" with whatever parts are known.
func personLabel(args Args) string {
	label := args.Name
	if args.Title != "" {
		label += ", " + args.Title
	}
	if args.Company != "" {
		label += " at " + args.Company
	}
	return label
}

func personSpecs() []*Spec {
	return []*Spec{
		{
			Name: "person.profile",
			Instructions: "You research professional profiles. Only report facts attributable to " +
				"public professional sources. " + jsonOnly,
			BuildPrompt: func(args Args) (string, error) {
				if err := requirePerson(args); err != nil {
					return "", err
				}
				return fmt.Sprintf(`Provide a professional profile of %s. Return `+
					`{"fullName": <string>, "currentTitle": <string|null>, "currentCompany": <string|null>, `+
					`"location": <string|null>, "linkedinUrl": <string|null>, "summary": <string|null>}.`,
					personLabel(args)), nil
			},
			MaxTokens:   600,
			Temperature: 0,
			Search:      SearchConfig{Enabled: true, ContextSize: "medium"},
		},
		{
			Name:         "person.career",
			Instructions: "You reconstruct career history from public sources. " + jsonOnly,
			BuildPrompt: func(args Args) (string, error) {
				if err := requirePerson(args); err != nil {
					return "", err
				}
				return fmt.Sprintf(`List the career history of %s. Return `+
					`{"positions": [{"title": <string>, "company": <string>, "startYear": <number|null>, `+
					`"endYear": <number|null>}]}.`, personLabel(args)), nil
			},
			MaxTokens:   800,
			Temperature: 0.1,
			Search:      SearchConfig{Enabled: true, ContextSize: "medium"},
		},
		{
			Name: "person.publications",
			Instructions: "You find talks, articles, podcasts and awards attributable to a person. " +
				"Cite the venue or publication for each. " + jsonOnly,
			BuildPrompt: func(args Args) (string, error) {
				if err := requirePerson(args); err != nil {
					return "", err
				}
				return fmt.Sprintf(`What public thought leadership exists for %s? Return `+
					`{"speakingEngagements": [<string>], "articles": [<string>], "awards": [<string>], `+
					`"mediaMentions": [<string>]}.`, personLabel(args)), nil
			},
			MaxTokens:   800,
			Temperature: 0.2,
			Search:      SearchConfig{Enabled: true, Recency: "year", ContextSize: "high"},
		},
		{
			Name: "person.social",
			Instructions: "You summarize recent public professional social activity. Include raw " +
				"excerpts of notable posts where available. " + jsonOnly,
			BuildPrompt: func(args Args) (string, error) {
				if err := requirePerson(args); err != nil {
					return "", err
				}
				return fmt.Sprintf(`Summarize recent public social activity of %s. Return `+
					`{"recentActivity": <string|null>, "topics": [<string>], "postingFrequency": `+
					`"inactive"|"occasional"|"active"|null}.`, personLabel(args)), nil
			},
			MaxTokens:   800,
			Temperature: 0.2,
			Search:      SearchConfig{Enabled: true, Recency: "month", ContextSize: "medium"},
		},
		{
			Name:         "person.education",
			Instructions: "You report education background from public sources. " + jsonOnly,
			BuildPrompt: func(args Args) (string, error) {
				if err := requirePerson(args); err != nil {
					return "", err
				}
				return fmt.Sprintf(`What is the education background of %s? Return `+
					`{"schools": [{"name": <string>, "degree": <string|null>, "field": <string|null>, `+
					`"year": <number|null>}]}.`, personLabel(args)), nil
			},
			MaxTokens:   400,
			Temperature: 0,
			Search:      SearchConfig{Enabled: true, ContextSize: "low"},
		},
	}
}

func verifySpecs() []*Spec {
	return []*Spec{
		{
			Name: "verify.fact",
			Instructions: "You verify a single factual claim against current public sources and " +
				"report whether it holds. " + jsonOnly,
			BuildPrompt: func(args Args) (string, error) {
				claim := args.Extra["claim"]
				if claim == "" {
					return "", errors.New("verify.fact requires a claim")
				}
				return fmt.Sprintf(`Verify the claim: %q. Return `+
					`{"verdict": "supported"|"refuted"|"unverifiable", "evidence": <string|null>, `+
					`"source": <string|null>}.`, claim), nil
			},
			MaxTokens:   400,
			Temperature: 0,
			Search:      SearchConfig{Enabled: true, Recency: "month", ContextSize: "medium"},
		},
	}
}
