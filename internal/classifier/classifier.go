package classifier

import (
	"sort"
	"strings"

	"finetuner/internal/models"
)

// Config holds the relevance thresholds. Zero values are replaced with the
// calibrated defaults; the confidence formula is tuned to substring matching,
// so changing the matcher means revisiting these numbers.
type Config struct {
	MinMessages        int     `yaml:"min_messages"`
	MinKeywordMatches  int     `yaml:"min_keyword_matches"`
	RelevanceThreshold float64 `yaml:"relevance_threshold"`
}

func (c Config) withDefaults() Config {
	if c.MinMessages == 0 {
		c.MinMessages = 3
	}
	if c.MinKeywordMatches == 0 {
		c.MinKeywordMatches = 2
	}
	if c.RelevanceThreshold == 0 {
		c.RelevanceThreshold = 0.3
	}
	return c
}

// Result carries the fields of a ClassificationRecord derived from one
// conversation.
type Result struct {
	IsSecurityRelated bool
	Confidence        float64
	ThreatCategory    *string
	MatchedKeywords   []string
}

// categoryPatterns maps each threat category to the phrases that vote for
// it. Matching is plain substring containment over the lower-cased
// conversation text.
var categoryPatterns = map[string][]string{
	models.CategoryMalware: {
		"malware", "trojan", "virus", "ransomware", "worm", "spyware",
		"rootkit", "keylogger", "botnet", "quarantine",
	},
	models.CategoryPhishing: {
		"phishing", "credential", "spoofed", "fake login", "suspicious link",
		"smishing",
	},
	models.CategoryNetworkIntrusion: {
		"intrusion", "port scan", "unauthorized access", "lateral movement",
		"brute force", "backdoor",
	},
	models.CategoryDataBreach: {
		"data breach", "exfiltrat", "leaked", "stolen data", "data dump",
	},
	models.CategoryVulnerability: {
		"vulnerability", "cve-", "exploit", "zero-day", "buffer overflow",
		"sql injection", "privilege escalation",
	},
	models.CategorySocialEngineering: {
		"social engineering", "pretexting", "baiting", "impersonation",
		"gift card scam",
	},
}

// generalKeywords count toward relevance but do not vote for any category.
var generalKeywords = []string{
	"hash", "firewall", "encryption", "security", "attack", "incident",
	"forensic", "threat", "compromised", "authentication", "payload", "siem",
}

// vocabulary is the deduplicated union of every category pattern and the
// general keywords, sorted so matching order is stable.
var vocabulary = buildVocabulary()

func buildVocabulary() []string {
	seen := make(map[string]struct{})
	var terms []string
	add := func(term string) {
		if _, ok := seen[term]; !ok {
			seen[term] = struct{}{}
			terms = append(terms, term)
		}
	}
	for _, patterns := range categoryPatterns {
		for _, p := range patterns {
			add(p)
		}
	}
	for _, k := range generalKeywords {
		add(k)
	}
	sort.Strings(terms)
	return terms
}

// Classifier decides whether a conversation is security-relevant. It is a
// pure function over the conversation content: no I/O, no state, identical
// output for identical input.
type Classifier struct {
	cfg Config
}

func New(cfg Config) *Classifier {
	return &Classifier{cfg: cfg.withDefaults()}
}

// Classify derives the classification fields for one conversation.
// Conversations with fewer than MinMessages messages are not an error; they
// are simply never relevant and carry zero confidence.
func (c *Classifier) Classify(conv *models.Conversation) Result {
	if conv == nil || len(conv.Messages) < c.cfg.MinMessages {
		return Result{MatchedKeywords: []string{}}
	}

	var b strings.Builder
	for _, msg := range conv.Messages {
		b.WriteString(msg.Content)
		b.WriteString("\n")
	}
	text := strings.ToLower(b.String())

	matched := make([]string, 0, 4)
	for _, term := range vocabulary {
		if strings.Contains(text, term) {
			matched = append(matched, term)
		}
	}

	confidence := 0.0
	if len(matched) > 0 {
		confidence = float64(len(matched)) / float64(len(conv.Messages)) * 2
		if confidence > 1.0 {
			confidence = 1.0
		}
	}

	return Result{
		IsSecurityRelated: len(matched) >= c.cfg.MinKeywordMatches && confidence > c.cfg.RelevanceThreshold,
		Confidence:        confidence,
		ThreatCategory:    assignCategory(text),
		MatchedKeywords:   matched,
	}
}

// assignCategory picks the category with the strictly greatest number of
// distinct matching patterns. Ties and an all-zero board yield no category;
// first-match-wins is deliberately not the rule.
func assignCategory(text string) *string {
	best := ""
	bestCount := 0
	tied := false
	// Iterate categories in sorted order so tie detection is deterministic.
	names := make([]string, 0, len(categoryPatterns))
	for name := range categoryPatterns {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		count := 0
		for _, p := range categoryPatterns[name] {
			if strings.Contains(text, p) {
				count++
			}
		}
		switch {
		case count > bestCount:
			best, bestCount, tied = name, count, false
		case count == bestCount && count > 0:
			tied = true
		}
	}
	if bestCount == 0 || tied {
		return nil
	}
	return &best
}
