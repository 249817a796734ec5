package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewMessageAssignsID(t *testing.T) {
	m := NewMessage(TypeUAVList, nil)
	if m.ID == "" {
		t.Fatalf("expected a generated id")
	}
	if m.Body["type"] != TypeUAVList {
		t.Fatalf("body type not synced: %v", m.Body["type"])
	}
	if !m.IsNotification() {
		t.Fatalf("fresh message should have no correlation token")
	}
}

func TestDecodeMessageRoundTrip(t *testing.T) {
	m := NewMessage(TypeCMDReq, Body{"ids": []string{"v1", "v2"}, "command": "arm"})
	data, err := m.Encode()
	require.NoError(t, err)

	decoded, err := DecodeMessage(data)
	require.NoError(t, err)
	require.Equal(t, m.ID, decoded.ID)
	require.Equal(t, TypeCMDReq, decoded.Type)

	ids, err := decoded.StringSlice("ids")
	require.NoError(t, err)
	require.Equal(t, []string{"v1", "v2"}, ids)
}

func TestDecodeMessageRejectsMissingType(t *testing.T) {
	_, err := DecodeMessage([]byte(`{"id":"x","body":{}}`))
	require.Error(t, err)
}

func TestStringSliceErrors(t *testing.T) {
	m := NewMessage(TypeCMDReq, Body{"ids": "not-a-list"})
	if _, err := m.StringSlice("ids"); err == nil {
		t.Fatalf("expected error for non-list field")
	}
	if _, err := m.StringSlice("missing"); err == nil {
		t.Fatalf("expected error for missing field")
	}
	m = NewMessage(TypeCMDReq, Body{"ids": []any{"a", 1}})
	if _, err := m.StringSlice("ids"); err == nil {
		t.Fatalf("expected error for mixed list")
	}
}

func TestMessageBool(t *testing.T) {
	m := NewMessage(TypeDEVUnsub, Body{"removeAll": true})
	require.True(t, m.Bool("removeAll", false))
	require.False(t, m.Bool("includeSubtrees", false))
}
