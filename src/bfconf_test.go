package brutefir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bfconf_test_minimal = `
sample_rate: 48000
partition_size: 64
inputs:
  - module: file
    sample_format: s16_le
    channels: 2
    params: {path: /tmp/in.raw}
outputs:
  - module: file
    sample_format: s16_le
    channels: 2
    params: {path: /tmp/out.raw}
`

func Test_bfconf_parse_minimal(t *testing.T) {
	require.NoError(t, bfconf_parse([]byte(bfconf_test_minimal)))

	assert.Equal(t, 48000, bfconf.sample_rate)
	assert.Equal(t, 64, bfconf.filter_length)
	assert.Equal(t, 1, bfconf.n_subdevs[IN])
	assert.Equal(t, 1, bfconf.n_subdevs[OUT])
	assert.Equal(t, 2, bfconf.n_physical_channels[IN])
	assert.Equal(t, 2, bfconf.n_physical_channels[OUT])
	assert.True(t, bfconf.blocking_io)
	assert.False(t, bfconf.callback_io)
	assert.True(t, bfconf.allow_poll_mode)

	/* identity routing is generated when no routes are given */
	require.Equal(t, 2, bfconf.n_routes)
	assert.Equal(t, 0, bfconf.routes[0].inchannel)
	assert.Equal(t, 0, bfconf.routes[0].outchannel)
	assert.Equal(t, 1, bfconf.routes[1].inchannel)

	/* 1:1 channel mapping */
	assert.Equal(t, 1, bfconf.n_virtperphys[IN][0])
	assert.Equal(t, []int{1}, bfconf.phys2virt[IN][1])
}

func Test_bfconf_parse_device_settings(t *testing.T) {
	require.NoError(t, bfconf_parse([]byte(`
sample_rate: 44100
partition_size: 128
inputs:
  - module: file
    sample_format: s24_le
    channels: 1
    params: {path: /tmp/in.raw}
outputs:
  - module: file
    sample_format: s16_le
    channels: 2
    delay: [32, 0]
    max_delay: 64
    mute: [false, true]
    params: {path: /tmp/out.raw}
`)))
	assert.Equal(t, 32, bfconf.delay[OUT][0])
	assert.Equal(t, 0, bfconf.delay[OUT][1])
	assert.Equal(t, 64, bfconf.maxdelay[OUT][0])
	assert.False(t, bfconf.mute[OUT][0])
	assert.True(t, bfconf.mute[OUT][1])
	assert.Equal(t, BF_SAMPLE_FORMAT_S24_LE, bfconf.subdevs[IN][0].channels.sf.format)
	assert.Equal(t, 3, bfconf.subdevs[IN][0].channels.sf.bytes)
}

func Test_bfconf_parse_errors(t *testing.T) {
	assert.Error(t, bfconf_parse([]byte(`partition_size: 64`)),
		"missing sample_rate must be rejected")

	assert.Error(t, bfconf_parse([]byte(`
sample_rate: 48000
partition_size: 64
inputs:
  - module: nosuchmodule
    sample_format: s16_le
    channels: 1
    params: {path: /tmp/x}
outputs:
  - module: file
    sample_format: s16_le
    channels: 1
    params: {path: /tmp/y}
`)), "unknown module must be rejected")

	assert.Error(t, bfconf_parse([]byte(`
sample_rate: 48000
partition_size: 64
inputs:
  - module: file
    sample_format: s16_le
    channels: 1
    params: {path: /tmp/x}
outputs:
  - module: file
    sample_format: s16_le
    channels: 1
    params: {path: /tmp/y}
routes:
  - {in: 5, out: 0}
`)), "route channel out of range must be rejected")

	assert.Error(t, bfconf_parse([]byte(`
sample_rate: 48000
partition_size: 64
inputs:
  - module: file
    sample_format: s16_le
    channels: 1
    params: {path: /tmp/x}
outputs: []
`)), "a configuration without outputs must be rejected")

	assert.Error(t, bfconf_parse([]byte(`
sample_rate: 48000
partition_size: 64
inputs:
  - module: file
    sample_format: q13_le
    channels: 1
    params: {path: /tmp/x}
outputs:
  - module: file
    sample_format: s16_le
    channels: 1
    params: {path: /tmp/y}
`)), "unknown sample format must be rejected")
}
