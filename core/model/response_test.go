package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResponseCorrelation(t *testing.T) {
	req := NewMessage(TypeDEVSub, Body{"paths": []string{"/v1"}})
	resp := NewResponse(TypeDEVSub, nil, req)
	require.Equal(t, req.ID, resp.Refs)
	require.False(t, resp.IsNotification())

	notif := NewResponse(TypeUAVInf, nil, nil)
	require.True(t, notif.IsNotification())
}

func TestResponseLedgerCoversEveryID(t *testing.T) {
	resp := NewResponse(TypeCMDReq, nil, nil)
	ids := []string{"v1", "v2", "v3"}
	resp.AddSuccess("v1")
	resp.AddFailure("v2", "No such UAV")
	resp.AddReceipt("v3", map[string]any{"id": "r1", "state": "pending"})

	require.Equal(t, len(ids), resp.OutcomeCount())
	require.Equal(t, []string{"v1"}, resp.Successes())

	reason, ok := resp.FailureReason("v2")
	require.True(t, ok)
	require.Equal(t, "No such UAV", reason)

	view, ok := resp.Receipt("v3")
	require.True(t, ok)
	require.Equal(t, "r1", view["id"])
}

func TestResponseSingleOutcomePerID(t *testing.T) {
	resp := NewResponse(TypeCMDReq, nil, nil)
	resp.AddFailure("v1", "first")
	resp.AddFailure("v1", "second")
	reason, _ := resp.FailureReason("v1")
	require.Equal(t, "second", reason)
	require.Equal(t, 1, resp.OutcomeCount())
}
