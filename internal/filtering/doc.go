// Package filtering narrows the list of sync candidates by repository name
// and topic.
//
// Name rules are glob patterns (gobwas/glob, so '*' also matches across '/'),
// topic rules are exact matches. For both kinds:
//
//  1. A matching exclude rule removes the candidate.
//  2. When include rules exist, the candidate must match one of them.
//  3. Without include rules, anything not excluded is kept.
//
// A candidate must pass both the name and the topic rules.
package filtering
