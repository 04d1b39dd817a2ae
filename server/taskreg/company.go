package taskreg

import (
	"fmt"

	"github.com/pkg/errors"
)

const jsonOnly = "Respond with a single JSON object and nothing else. " +
	"Do not wrap the JSON in markdown fences. Use null for unknown values; never invent data."

func requireName(args Args) error {
	if args.Name == "" {
		return errors.New("company name is required")
	}
	return nil
}

func companySpecs() []*Spec {
	return []*Spec{
		{
			Name: "company.domain",
			Instructions: "You resolve the canonical website domain of a company. " +
				jsonOnly,
			BuildPrompt: func(args Args) (string, error) {
				if err := requireName(args); err != nil {
					return "", err
				}
				return fmt.Sprintf(`What is the official website domain of the company %q? `+
					`Return {"domain": "<bare domain without protocol or www>", "confidence": <0-1>}.`, args.Name), nil
			},
			MaxTokens:   200,
			Temperature: 0,
			Search:      SearchConfig{Enabled: true, ContextSize: "low"},
		},
		{
			Name: "company.financials",
			Instructions: "You are a financial research assistant. Report only verifiable figures " +
				"from filings, reputable financial press or the company itself. " + jsonOnly,
			BuildPrompt: func(args Args) (string, error) {
				if err := requireName(args); err != nil {
					return "", err
				}
				return fmt.Sprintf(`Provide a financial snapshot of %s (%s). Return `+
					`{"isPublic": <bool>, "ticker": <string|null>, "marketCap": <number|null>, `+
					`"annualRevenue": <number|null>, "employeeCount": <number|null>, `+
					`"revenueGrowthPct": <number|null>, "fiscalYear": <string|null>}.`,
					args.Name, args.Domain), nil
			},
			MaxTokens:   800,
			Temperature: 0.1,
			Search:      SearchConfig{Enabled: true, Recency: "month", ContextSize: "medium"},
		},
		{
			Name: "company.news",
			Instructions: "You summarize recent company news. Prefer primary sources and name " +
				"the publication for every item. " + jsonOnly,
			BuildPrompt: func(args Args) (string, error) {
				if err := requireName(args); err != nil {
					return "", err
				}
				return fmt.Sprintf(`List up to 5 significant recent news items about %s (%s). Return `+
					`{"items": [{"headline": <string>, "date": <ISO date|null>, "source": <string>, `+
					`"url": <string|null>, "summary": <string>}]}.`, args.Name, args.Domain), nil
			},
			MaxTokens:   1000,
			Temperature: 0.2,
			Search:      SearchConfig{Enabled: true, Recency: "week", ContextSize: "high"},
		},
		{
			Name: "company.growth",
			Instructions: "You identify concrete growth events: funding, expansion, hiring waves, " +
				"product launches, major customers. " + jsonOnly,
			BuildPrompt: func(args Args) (string, error) {
				if err := requireName(args); err != nil {
					return "", err
				}
				return fmt.Sprintf(`What growth events has %s (%s) had in the last 12 months? Return `+
					`{"events": [{"type": <string>, "date": <ISO date|null>, "description": <string>, `+
					`"source": <string|null>}]}.`, args.Name, args.Domain), nil
			},
			MaxTokens:   800,
			Temperature: 0.2,
			Search:      SearchConfig{Enabled: true, Recency: "year", ContextSize: "medium"},
		},
		{
			Name: "company.risk",
			Instructions: "You surface negative or risk signals: layoffs, lawsuits, regulatory " +
				"action, security incidents, leadership departures. Report nothing speculative. " + jsonOnly,
			BuildPrompt: func(args Args) (string, error) {
				if err := requireName(args); err != nil {
					return "", err
				}
				return fmt.Sprintf(`What risk or negative signals exist for %s (%s)? Return `+
					`{"signals": [{"type": <string>, "date": <ISO date|null>, "description": <string>, `+
					`"severity": "low"|"medium"|"high", "source": <string|null>}]}.`, args.Name, args.Domain), nil
			},
			MaxTokens:   800,
			Temperature: 0.1,
			Search:      SearchConfig{Enabled: true, Recency: "year", ContextSize: "medium"},
		},
		{
			Name: "company.industry",
			Instructions: "You classify companies and describe their competitive context. " + jsonOnly,
			BuildPrompt: func(args Args) (string, error) {
				if err := requireName(args); err != nil {
					return "", err
				}
				return fmt.Sprintf(`Describe the industry context of %s (%s). Return `+
					`{"industry": <string>, "subIndustry": <string|null>, "businessModel": <string|null>, `+
					`"competitors": [<string>], "marketPosition": <string|null>}.`, args.Name, args.Domain), nil
			},
			MaxTokens:   600,
			Temperature: 0.2,
			Search:      SearchConfig{Enabled: true, ContextSize: "medium"},
		},
		{
			Name: "company.private_financials",
			Instructions: "You research funding history of private companies. Only report rounds " +
				"you can attribute to a specific source. Include the source URL for every round. " + jsonOnly,
			BuildPrompt: func(args Args) (string, error) {
				if err := requireName(args); err != nil {
					return "", err
				}
				return fmt.Sprintf(`Report the funding history of the private company %s (%s). Return `+
					`{"totalRaised": <number|null>, "lastRound": {"type": <string|null>, "amount": <number|null>, `+
					`"date": <ISO date|null>, "source": <string|null>, "sourceUrl": <string|null>}, `+
					`"investors": [<string>], "estimatedRevenue": <number|null>, "verified": <bool>}.`,
					args.Name, args.Domain), nil
			},
			MaxTokens:   800,
			Temperature: 0,
			Search:      SearchConfig{Enabled: true, Recency: "year", ContextSize: "high"},
		},
		{
			Name:         "company.tech_stack_fallback",
			Instructions: "You identify technologies a company uses, from job postings, engineering blogs and public records. " + jsonOnly,
			BuildPrompt: func(args Args) (string, error) {
				if err := requireName(args); err != nil {
					return "", err
				}
				return fmt.Sprintf(`What technologies does %s (%s) use? Return `+
					`{"technologies": [{"name": <string>, "category": <string>}]}.`, args.Name, args.Domain), nil
			},
			MaxTokens:   600,
			Temperature: 0.1,
			Search:      SearchConfig{Enabled: true, ContextSize: "medium"},
		},
		{
			Name: "company.contacts_fallback",
			Instructions: "You identify publicly listed executives of a company. Only include people " +
				"named on the company site or in reputable press. " + jsonOnly,
			BuildPrompt: func(args Args) (string, error) {
				if err := requireName(args); err != nil {
					return "", err
				}
				return fmt.Sprintf(`Who are the current executives of %s (%s)? Return `+
					`{"contacts": [{"name": <string>, "title": <string>, "linkedinUrl": <string|null>}]}.`,
					args.Name, args.Domain), nil
			},
			MaxTokens:   600,
			Temperature: 0,
			Search:      SearchConfig{Enabled: true, ContextSize: "medium"},
		},
		{
			Name:         "company.org_fallback",
			Instructions: "You report basic organization facts: headquarters, founding year, size, locations. " + jsonOnly,
			BuildPrompt: func(args Args) (string, error) {
				if err := requireName(args); err != nil {
					return "", err
				}
				return fmt.Sprintf(`Report organization metadata for %s (%s). Return `+
					`{"headquarters": <string|null>, "foundedYear": <number|null>, `+
					`"employeeRange": <string|null>, "locations": [<string>]}.`, args.Name, args.Domain), nil
			},
			MaxTokens:   400,
			Temperature: 0,
			Search:      SearchConfig{Enabled: true, ContextSize: "low"},
		},
		{
			Name: "company.synthesis",
			Instructions: "You synthesize qualitative sales intelligence from research context " +
				"provided in the prompt. Do not search for new facts; reason over what is given. " + jsonOnly,
			BuildPrompt: func(args Args) (string, error) {
				if err := requireName(args); err != nil {
					return "", err
				}
				context := args.Extra["context"]
				if context == "" {
					return "", errors.New("synthesis requires research context")
				}
				return fmt.Sprintf(`Given this research about %s:%s%s%sReturn `+
					`{"summary": <string>, "buyingSignals": [<string>], "talkingPoints": [<string>], `+
					`"outreachAngle": <string|null>}.`, args.Name, "\n\n", context, "\n\n"), nil
			},
			MaxTokens:   1200,
			Temperature: 0.4,
			Search:      SearchConfig{Enabled: false},
		},
		{
			Name: "company.activity",
			Instructions: "You merge activity signals (hiring, posting cadence, event presence) into " +
				"a short activity profile. " + jsonOnly,
			BuildPrompt: func(args Args) (string, error) {
				if err := requireName(args); err != nil {
					return "", err
				}
				return fmt.Sprintf(`Summarize the current public activity level of %s (%s). Return `+
					`{"hiringActivity": "none"|"low"|"moderate"|"high", "recentPosts": [<string>], `+
					`"eventAppearances": [<string>], "lastObservedAt": <ISO date|null>}.`,
					args.Name, args.Domain), nil
			},
			MaxTokens:   600,
			Temperature: 0.2,
			Search:      SearchConfig{Enabled: true, Recency: "month", ContextSize: "medium"},
		},
	}
}
