package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaymesh/transit/pkg/localbus"
	"github.com/relaymesh/transit/pkg/packet"
)

func TestHandleRemoteRequestDispatchesRegisteredAction(t *testing.T) {
	bus := localbus.New()
	b := NewLocalBroker("A", bus)

	b.RegisterAction("math.add", func(ctx RequestContext) (any, error) {
		params := ctx.Params.(map[string]any)
		return params["a"].(int) + params["b"].(int), nil
	})

	result, err := b.HandleRemoteRequest(RequestContext{
		Action: "math.add",
		Params: map[string]any{"a": 2, "b": 3},
	})
	require.NoError(t, err)
	assert.Equal(t, 5, result)
}

func TestHandleRemoteRequestUnknownAction(t *testing.T) {
	b := NewLocalBroker("A", localbus.New())

	_, err := b.HandleRemoteRequest(RequestContext{Action: "nope.nope"})
	require.Error(t, err)

	var notFound *ErrActionNotFound
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "nope.nope", notFound.Action)
}

func TestEmitLocalServicesRespectsGroupFilter(t *testing.T) {
	b := NewLocalBroker("A", localbus.New())

	var got []string
	b.RegisterEvent("user.created", "mail", func(event string, data any, sender string) {
		got = append(got, "mail")
	})
	b.RegisterEvent("user.created", "audit", func(event string, data any, sender string) {
		got = append(got, "audit")
	})

	b.EmitLocalServices("user.created", nil, []string{"audit"}, "B")

	assert.Equal(t, []string{"audit"}, got)
}

func TestGetLocalNodeInfoListsRegisteredServices(t *testing.T) {
	b := NewLocalBroker("A", localbus.New())
	b.RegisterAction("math.add", func(RequestContext) (any, error) { return nil, nil })
	b.RegisterAction("math.sub", func(RequestContext) (any, error) { return nil, nil })
	b.RegisterAction("users.get", func(RequestContext) (any, error) { return nil, nil })

	info := b.GetLocalNodeInfo()
	assert.ElementsMatch(t, []string{"math", "users"}, info.Services)
}

func TestGetEventGroupsReturnsUniqueGroups(t *testing.T) {
	b := NewLocalBroker("A", localbus.New())
	b.RegisterEvent("user.created", "mail", func(string, any, string) {})
	b.RegisterEvent("user.created", "mail", func(string, any, string) {})
	b.RegisterEvent("user.created", "audit", func(string, any, string) {})

	assert.ElementsMatch(t, []string{"mail", "audit"}, b.GetEventGroups("user.created"))
}

func TestCreateContextFromPayloadCopiesFields(t *testing.T) {
	b := NewLocalBroker("A", localbus.New())

	payload := &packet.RequestPayload{
		Header:    packet.Header{Ver: packet.ProtocolVersion, Sender: "B"},
		ID:        "r1",
		Action:    "math.add",
		Params:    map[string]any{"a": 1},
		RequestID: "req-1",
	}

	ctx, err := b.CreateContextFromPayload(payload)
	require.NoError(t, err)
	assert.Equal(t, "math.add", ctx.Action)
	assert.Equal(t, "B", ctx.Sender)
	assert.Equal(t, "req-1", ctx.RequestID)
}
