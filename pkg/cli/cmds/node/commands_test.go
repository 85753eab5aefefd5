package node

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/nodeos/pkg/can"
	"github.com/robotalks/nodeos/pkg/store"
)

func TestApplyConfig(t *testing.T) {
	conf := store.NodeConfig{Address: 0x10, Baud: byte(can.Baud125K)}
	require.NoError(t, applyConfig(&conf, []string{"addr=0x21", "baud=500K", "io=7", "desc=left wheel"}))
	require.Equal(t, store.NodeConfig{
		Address:     0x21,
		Baud:        byte(can.Baud500K),
		IOAddress:   7,
		Description: "left wheel",
	}, conf)
	require.Equal(t, "500K", viewOf(conf).Baud)

	require.Error(t, applyConfig(&conf, []string{"addr"}))
	require.Error(t, applyConfig(&conf, []string{"addr=0x100"}))
	require.Error(t, applyConfig(&conf, []string{"baud=42K"}))
	require.Error(t, applyConfig(&conf, []string{"color=red"}))
	require.Error(t, applyConfig(&conf, []string{"desc=" + strings.Repeat("x", store.DescriptionSize)}))
}
