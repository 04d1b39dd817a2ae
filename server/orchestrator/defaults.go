package orchestrator

import "encoding/json"

// Defaults substituted for tolerant-batch sections whose task failed after
// retries. Each default is structurally valid for its section so downstream
// consumers never need a failed-task special case.
var (
	defaultNews = json.RawMessage(`{"items":[],"note":"no recent news found"}`)

	defaultGrowth = json.RawMessage(`{"events":[],"headcountTrend":"unknown"}`)

	defaultRisk = json.RawMessage(`{"signals":[],"riskLevel":"unknown"}`)

	defaultIndustry = json.RawMessage(`{"industry":"unknown","competitors":[],"marketPosition":"unknown"}`)

	defaultFunding = json.RawMessage(`{"totalRaised":"not disclosed","lastRound":{"type":"not disclosed","amount":"not disclosed","date":null,"source":"not disclosed","sourceUrl":null},"investors":[],"estimatedRevenue":"not disclosed","verified":false}`)

	defaultTechStack = json.RawMessage(`{"technologies":[],"categories":{},"confidence":"none"}`)

	defaultContacts = json.RawMessage(`{"contacts":[],"note":"no executive contacts found"}`)

	defaultOrganization = json.RawMessage(`{"headcount":null,"departments":[],"locations":[]}`)

	defaultIntelligence = json.RawMessage(`{"summary":"insufficient data for synthesis","talkingPoints":[],"redFlags":[]}`)

	defaultActivity = json.RawMessage(`{"events":[],"hiringActivity":[],"note":"no recent activity found"}`)

	defaultPersonProfile = json.RawMessage(`{"fullName":null,"title":null,"company":null,"location":null,"linkedinUrl":null}`)

	defaultCareer = json.RawMessage(`{"currentRole":null,"history":[],"tenureYears":null}`)

	defaultThoughtLeadership = json.RawMessage(`{"speakingEngagements":[],"articles":[],"awards":[],"mediaMentions":[]}`)

	defaultSocial = json.RawMessage(`{"recentActivity":"","topics":[],"engagementLevel":"unknown"}`)

	defaultEducation = json.RawMessage(`{"degrees":[],"institutions":[],"certifications":[]}`)
)
