package monitor

import (
	"regexp"
	"strings"

	"activator/internal/models"
)

// Classification is an ordered list of text heuristics over probe output. The
// first matching rule wins.

// transportFailurePhrases are the diagnostics the executors emit when a
// command never reached the service.
var transportFailurePhrases = []string{
	"unreachable",
	"connection timeout",
	"connection test failed",
	"could not retrieve credentials",
	"credentials may be invalid",
	"execution failed",
}

var stoppedPhrases = []string{
	"inactive",
	"dead",
	"stopped",
	"failed",
}

var unitNotFound = regexp.MustCompile(`unit \S+ (could )?not (be )?found`)

// Classifier maps probe output to a Status.
type Classifier struct {
	processNames []string
}

// NewClassifier creates a classifier. processNames lists the services whose
// status probe is a process listing (for example `ps -ef | grep kafka`); for
// those, presence of the process in the output decides the status.
func NewClassifier(processNames []string) *Classifier {
	names := make([]string, 0, len(processNames))
	for _, n := range processNames {
		if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
			names = append(names, n)
		}
	}
	return &Classifier{processNames: names}
}

// Classify returns the status that output indicates for the named service.
func (c *Classifier) Classify(serviceName, output string) models.Status {
	lower := strings.ToLower(output)

	if containsAny(lower, transportFailurePhrases) {
		return models.StatusDown
	}
	if strings.Contains(lower, "active (running)") {
		return models.StatusUp
	}
	if containsAny(lower, stoppedPhrases) || unitNotFound.MatchString(lower) {
		return models.StatusDown
	}
	if process, ok := c.processFor(serviceName); ok {
		if processListed(lower, process) {
			return models.StatusUp
		}
		return models.StatusDown
	}
	if strings.Contains(lower, "running") {
		return models.StatusUp
	}
	return models.StatusUnknown
}

func (c *Classifier) processFor(serviceName string) (string, bool) {
	name := strings.ToLower(serviceName)
	for _, p := range c.processNames {
		if strings.Contains(name, p) {
			return p, true
		}
	}
	return "", false
}

// processListed reports whether some output line mentions process and is not
// the grep command that produced the listing.
func processListed(output, process string) bool {
	for _, line := range strings.Split(output, "\n") {
		if strings.Contains(line, process) && !strings.Contains(line, "grep") {
			return true
		}
	}
	return false
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
