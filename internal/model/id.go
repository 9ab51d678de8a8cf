package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var sessionIDRegex = regexp.MustCompile(`^(initializer|coding|testing|cleanup)-[0-9]{8}-[0-9a-f]{8}$`)

// NewSessionID allocates a session identifier of the form
// <type>-<YYYYMMDD>-<8 hex chars>. Collision probability is negligible at
// human-scale session volume, but not formally zero.
func NewSessionID(agentType AgentType) (string, error) {
	if !validAgentTypes[agentType] {
		return "", fmt.Errorf("invalid agent type: %s", agentType)
	}
	date := time.Now().UTC().Format("20060102")
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s-%s-%s", agentType, date, suffix), nil
}

// ValidateSessionID reports whether id matches the generated format.
func ValidateSessionID(id string) bool {
	return sessionIDRegex.MatchString(id)
}

// ParseSessionAgentType extracts the agent type from a session id.
func ParseSessionAgentType(id string) (AgentType, error) {
	if !ValidateSessionID(id) {
		return "", fmt.Errorf("invalid session id format: %s", id)
	}
	m := sessionIDRegex.FindStringSubmatch(id)
	return AgentType(m[1]), nil
}
