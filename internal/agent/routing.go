package agent

// Route picks the routing path for a classification. It is a pure function:
// identical classifications always yield the same path.
func Route(c Classification) RoutingPath {
	overconfident := c.ShowsOverconfidence || c.ConfidenceLevel == Overconfident
	switch {
	case c.RequestsDirectAnswer && !c.IsFeedbackRequest:
		return PathCognitiveProtection
	case c.IsTechnicalQuestion && !overconfident:
		return PathKnowledgeOnly
	case c.IsFeedbackRequest:
		return PathMultiAgent
	case overconfident && c.EngagementLevel != High:
		return PathCognitiveChallenge
	case c.ShowsConfusion:
		return PathSocraticFocus
	case c.IsKnowledgeSeeking && c.IsQuestion:
		return PathKnowledgePlusSocratic
	default:
		return PathSocraticFocus
	}
}

// PathAgents lists the agents a path invokes after the analysis agent, in
// order. Agents in the same inner slice may run concurrently.
func PathAgents(p RoutingPath) [][]Name {
	switch p {
	case PathKnowledgeOnly:
		return [][]Name{{DomainExpert}}
	case PathKnowledgePlusSocratic:
		return [][]Name{{DomainExpert}, {SocraticTutor}}
	case PathCognitiveChallenge:
		return [][]Name{{CognitiveAgent}}
	case PathMultiAgent:
		return [][]Name{{DomainExpert, CognitiveAgent}, {SocraticTutor}}
	case PathCognitiveProtection:
		return [][]Name{{CognitiveAgent}, {SocraticTutor}}
	default:
		return [][]Name{{SocraticTutor}}
	}
}

// PrimaryAgent is the agent whose text leads the composed response.
func PrimaryAgent(p RoutingPath) Name {
	switch p {
	case PathKnowledgeOnly, PathKnowledgePlusSocratic, PathMultiAgent:
		return DomainExpert
	case PathCognitiveChallenge, PathCognitiveProtection:
		return CognitiveAgent
	default:
		return SocraticTutor
	}
}
