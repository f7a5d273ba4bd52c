// Package registry holds the Upstream and Route registries: alias-indexed
// upstream records, ordered per-upstream route tables, and the path/method/
// header matching rules that select a route for an inbound request.
package registry

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/stacklok/oagw/pkg/oagw"
)

// segmentKind classifies one compiled path-pattern segment.
type segmentKind int

const (
	segLiteral segmentKind = iota
	segParam
	segCatchAll
)

type pathSegment struct {
	kind    segmentKind
	literal string // segLiteral
	name    string // segParam, segCatchAll
}

// CompiledPattern is a parsed path_pattern, ready for matching.
type CompiledPattern struct {
	raw      string
	segments []pathSegment
}

// CompilePattern parses a path_pattern of literal segments, "{name}" single-
// segment binds, and a trailing "{name*}" catch-all (spec.md §4.1).
func CompilePattern(pattern string) (*CompiledPattern, error) {
	trimmed := strings.Trim(pattern, "/")
	var segs []pathSegment
	parts := strings.Split(trimmed, "/")
	if trimmed == "" {
		parts = nil
	}
	for i, part := range parts {
		switch {
		case strings.HasPrefix(part, "{") && strings.HasSuffix(part, "*}"):
			if i != len(parts)-1 {
				return nil, fmt.Errorf("catch-all segment %q must be the last segment", part)
			}
			segs = append(segs, pathSegment{kind: segCatchAll, name: part[1 : len(part)-2]})
		case strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}"):
			segs = append(segs, pathSegment{kind: segParam, name: part[1 : len(part)-1]})
		case part == "":
			return nil, fmt.Errorf("empty path segment in pattern %q", pattern)
		default:
			segs = append(segs, pathSegment{kind: segLiteral, literal: part})
		}
	}
	return &CompiledPattern{raw: pattern, segments: segs}, nil
}

// Match attempts to bind path (already stripped of any alias prefix) against
// the pattern, returning the bound params on success.
func (p *CompiledPattern) Match(path string) (map[string]string, bool) {
	trimmed := strings.Trim(path, "/")
	var pathParts []string
	if trimmed != "" {
		pathParts = strings.Split(trimmed, "/")
	}

	params := map[string]string{}
	pi := 0
	for _, seg := range p.segments {
		switch seg.kind {
		case segCatchAll:
			params[seg.name] = strings.Join(pathParts[pi:], "/")
			pi = len(pathParts)
		case segParam:
			if pi >= len(pathParts) {
				return nil, false
			}
			params[seg.name] = pathParts[pi]
			pi++
		case segLiteral:
			if pi >= len(pathParts) || pathParts[pi] != seg.literal {
				return nil, false
			}
			pi++
		}
	}
	if pi != len(pathParts) {
		return nil, false
	}
	return params, true
}

// MatchRequest reports whether an HTTP method/path/header set satisfies an
// HTTP MatchRule.
func MatchRequest(rule oagw.MatchRule, method, path string, header http.Header) (map[string]string, bool) {
	if rule.Kind != oagw.MatchHTTP {
		return nil, false
	}
	if len(rule.Methods) > 0 && !rule.Methods[method] {
		return nil, false
	}
	pattern, err := CompilePattern(rule.PathPattern)
	if err != nil {
		return nil, false
	}
	params, ok := pattern.Match(path)
	if !ok {
		return nil, false
	}
	for _, pred := range rule.HeaderPredicates {
		v := header.Get(pred.Name)
		switch pred.Kind {
		case oagw.HeaderPresent:
			if v == "" {
				return nil, false
			}
		case oagw.HeaderExact:
			if v != pred.Value {
				return nil, false
			}
		}
	}
	return params, true
}

// MatchGRPCRequest reports whether a gRPC service/method satisfies a gRPC MatchRule.
func MatchGRPCRequest(rule oagw.MatchRule, service, method string) bool {
	return rule.Kind == oagw.MatchGRPC && rule.Service == service && rule.Method == method
}
