// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package scratch

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArena_AppendSegment(t *testing.T) {
	var a Arena

	require.True(t, a.AppendSegment([]byte("shadow")))
	require.True(t, a.AppendSegment([]byte("etc")))

	assert.Equal(t, 2, a.Segments())
	assert.Equal(t, []byte("shadow"), a.Segment(0))
	assert.Equal(t, []byte("etc"), a.Segment(1))
	assert.Nil(t, a.Segment(2))
	assert.Nil(t, a.Segment(-1))
}

func TestArena_SegmentTableFull(t *testing.T) {
	var a Arena

	for i := 0; i < MaxSegments; i++ {
		require.True(t, a.AppendSegment([]byte("d")))
	}
	assert.False(t, a.AppendSegment([]byte("d")))
	assert.Equal(t, MaxSegments, a.Segments())
}

func TestArena_SegmentBufferFull(t *testing.T) {
	var a Arena

	big := bytes.Repeat([]byte("x"), SegmentBufSize-4)
	require.True(t, a.AppendSegment(big))
	assert.False(t, a.AppendSegment([]byte("toolong")))
	assert.True(t, a.AppendSegment([]byte("fit")))
	assert.Equal(t, 2, a.Segments())
}

func TestArena_SegmentIsNotAppendable(t *testing.T) {
	var a Arena
	require.True(t, a.AppendSegment([]byte("ab")))
	require.True(t, a.AppendSegment([]byte("cd")))

	seg := a.Segment(0)
	_ = append(seg, 'X')
	assert.Equal(t, []byte("cd"), a.Segment(1))
}

func TestPool_AcquireReturnsZeroedArena(t *testing.T) {
	p := NewPool()

	a := p.Acquire()
	a.Path[0] = '/'
	a.Key[0] = 'k'
	require.True(t, a.AppendSegment([]byte("leak")))
	p.Release(a)

	for i := 0; i < 8; i++ {
		b := p.Acquire()
		assert.Equal(t, byte(0), b.Path[0])
		assert.Equal(t, byte(0), b.Key[0])
		assert.Equal(t, 0, b.Segments())
		p.Release(b)
	}
}

func TestPool_ReleaseNil(t *testing.T) {
	p := NewPool()
	assert.NotPanics(t, func() { p.Release(nil) })
}
