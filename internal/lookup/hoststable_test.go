package lookup_test

import (
	"testing"

	"github.com/krysearch/privacyfilters/internal/lookup"
	"github.com/stretchr/testify/assert"
)

func TestHostsTable_TryAdd(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		want assert.BoolAssertionFunc
		name string
		text string
	}{{
		want: assert.True,
		name: "host",
		text: testRuleHost,
	}, {
		want: assert.False,
		name: "host_with_path",
		text: "||cdn.example/pixel.gif",
	}, {
		want: assert.False,
		name: "end_anchor",
		text: testRuleHost + "|",
	}, {
		want: assert.False,
		name: "start_anchor",
		text: "|" + testDomain + "^",
	}, {
		want: assert.False,
		name: "wildcard",
		text: "||ads*.example^",
	}, {
		want: assert.False,
		name: "substring",
		text: testRuleShortcut,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			storage := newStorage(t, tc.text)
			tbl := lookup.NewHostsTable(storage)
			tc.want(t, tbl.TryAdd(storage[0], 0))
		})
	}
}

func TestHostsTable_Match(t *testing.T) {
	t.Parallel()

	storage := newStorage(t, testRulesAll...)
	tbl := lookup.NewHostsTable(storage)
	loadTable(t, tbl, storage)

	testCases := []struct {
		name         string
		candidate    string
		wantRuleText string
	}{{
		name:         "no_match",
		candidate:    testURLStrNoMatch,
		wantRuleText: "",
	}, {
		name:         "url",
		candidate:    testURLStrHost,
		wantRuleText: testRuleHost,
	}, {
		name:         "subdomain",
		candidate:    testURLStrSub,
		wantRuleText: testRuleHost,
	}, {
		name:         "hostname",
		candidate:    testDomain,
		wantRuleText: testRuleHost,
	}, {
		name:         "port",
		candidate:    "http://" + testDomain + ":8080/",
		wantRuleText: "",
	}, {
		name:         "not_subdomain",
		candidate:    testURLStrNot,
		wantRuleText: "",
	}, {
		name:         "suffix_domain",
		candidate:    "https://" + testDomain + ".evil.example/",
		wantRuleText: "",
	}, {
		name:         "in_query",
		candidate:    "https://evil.example/?u=" + testDomain,
		wantRuleText: "",
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			assertMatch(t, tbl, storage, tc.candidate, tc.wantRuleText)
		})
	}
}
