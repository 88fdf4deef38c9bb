package trigger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/houseofmisfits/willow/internal/platform"
)

func noop(ctx context.Context, msg *platform.Message) (bool, error) {
	return true, nil
}

func TestChannel_Matches(t *testing.T) {
	tr := NewChannel("chan-1", noop)

	assert.True(t, tr.Matches(&platform.Message{ChannelID: "chan-1"}))
	assert.False(t, tr.Matches(&platform.Message{ChannelID: "chan-2"}))
	assert.False(t, tr.Matches(&platform.Message{ChannelID: "chan-1", DM: true}))
	assert.Equal(t, "channel:chan-1", tr.Key())
}

func TestDM_Matches(t *testing.T) {
	tr := NewDM(noop)

	assert.True(t, tr.Matches(&platform.Message{DM: true}))
	assert.False(t, tr.Matches(&platform.Message{DM: false}))
	// Bot authors never trigger the DM handler (prevents reply loops).
	assert.False(t, tr.Matches(&platform.Message{DM: true, AuthorBot: true}))
}

func TestCommand_Matches(t *testing.T) {
	tr := NewCommand(".", noop, "setconfig")

	assert.True(t, tr.Matches(&platform.Message{Content: ".setconfig key value"}))
	assert.True(t, tr.Matches(&platform.Message{Content: "  .setconfig  key  value"}))
	assert.False(t, tr.Matches(&platform.Message{Content: "setconfig key value"}))
	assert.False(t, tr.Matches(&platform.Message{Content: ".getconfig key"}))
	assert.False(t, tr.Matches(&platform.Message{Content: ""}))
	assert.False(t, tr.Matches(&platform.Message{Content: ".setconfig", DM: true}))
	assert.False(t, tr.Matches(&platform.Message{Content: ".setconfig", AuthorBot: true}))
}

func TestCommand_Aliases(t *testing.T) {
	tr := NewCommand("!", noop, "restart", "reboot")

	assert.True(t, tr.Matches(&platform.Message{Content: "!restart"}))
	assert.True(t, tr.Matches(&platform.Message{Content: "!reboot now"}))
	assert.False(t, tr.Matches(&platform.Message{Content: "!shutdown"}))
}

func TestArgs_CollapsesWhitespace(t *testing.T) {
	args := Args("  .event   set  mon   #chan ")
	require.Equal(t, []string{".event", "set", "mon", "#chan"}, args)
}

func TestArgs_NormalizesNFC(t *testing.T) {
	// "é" in decomposed form (e + combining acute) must compare equal to the
	// precomposed form after Args.
	decomposed := ".café"
	precomposed := ".café"
	require.Equal(t, Args(precomposed), Args(decomposed))
}
