// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ferry Contributors

package record_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferrybridge/ferry/internal/acl"
	"github.com/ferrybridge/ferry/internal/record"
)

func TestGrant_Validate(t *testing.T) {
	tests := []struct {
		name      string
		grant     record.Grant
		wantField string
	}{
		{
			name: "valid person grant",
			grant: record.Grant{
				AgentType: acl.AgentPerson,
				AgentName: "asantos",
				Level:     acl.LevelRead,
			},
		},
		{
			name: "valid group grant",
			grant: record.Grant{
				AgentType: acl.AgentGroup,
				AgentName: "editors",
				Level:     acl.LevelManage,
			},
		},
		{
			name: "invalid agent type",
			grant: record.Grant{
				AgentType: acl.AgentType("robot"),
				AgentName: "asantos",
				Level:     acl.LevelRead,
			},
			wantField: "agent_type",
		},
		{
			name: "empty agent name",
			grant: record.Grant{
				AgentType: acl.AgentPerson,
				Level:     acl.LevelRead,
			},
			wantField: "agent_name",
		},
		{
			name: "invalid level",
			grant: record.Grant{
				AgentType: acl.AgentPerson,
				AgentName: "asantos",
				Level:     acl.AccessLevel("owner"),
			},
			wantField: "level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.grant.Validate()
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var verr *record.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantField, verr.Field)
		})
	}
}

func TestRecord_Validate(t *testing.T) {
	valid := record.Record{
		ID:    "rec-1",
		Model: "GenericWork",
		Grants: []record.Grant{
			{AgentType: acl.AgentPerson, AgentName: "asantos", Level: acl.LevelEdit},
		},
	}
	assert.NoError(t, valid.Validate())

	noID := valid
	noID.ID = ""
	var verr *record.ValidationError
	require.ErrorAs(t, noID.Validate(), &verr)
	assert.Equal(t, "id", verr.Field)

	noModel := valid
	noModel.Model = ""
	require.ErrorAs(t, noModel.Validate(), &verr)
	assert.Equal(t, "model", verr.Field)

	badGrant := valid
	badGrant.Grants = []record.Grant{{AgentType: acl.AgentPerson, Level: acl.LevelEdit}}
	require.ErrorAs(t, badGrant.Validate(), &verr)
	assert.Equal(t, "agent_name", verr.Field)
}

func TestRecord_Clone_Isolation(t *testing.T) {
	orig := &record.Record{
		ID:    "rec-1",
		Model: "GenericWork",
		Attributes: map[string][]string{
			"title": {"Field Notes"},
		},
		Grants: []record.Grant{
			{ID: "g1", AgentType: acl.AgentGroup, AgentName: "editors", Level: acl.LevelEdit},
		},
	}

	clone := orig.Clone()
	clone.Attributes["title"][0] = "mutated"
	clone.Attributes["extra"] = []string{"added"}
	clone.Grants[0].AgentName = "mutated"

	assert.Equal(t, "Field Notes", orig.Attributes["title"][0])
	assert.NotContains(t, orig.Attributes, "extra")
	assert.Equal(t, "editors", orig.Grants[0].AgentName)
}

func TestRecord_Clone_Nil(t *testing.T) {
	var rec *record.Record
	assert.Nil(t, rec.Clone())
}
