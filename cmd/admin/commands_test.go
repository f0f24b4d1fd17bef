package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadEdgesSkipsHeader(t *testing.T) {
	edges, err := readEdges(strings.NewReader("follower_id,following_id\n1, 2\n3,4\n"))
	require.NoError(t, err)
	require.Len(t, edges, 2)
	assert.EqualValues(t, 1, edges[0].FollowerID)
	assert.EqualValues(t, 2, edges[0].FollowingID)
	assert.EqualValues(t, 3, edges[1].FollowerID)
	assert.EqualValues(t, 4, edges[1].FollowingID)
}

func TestReadEdgesWithoutHeader(t *testing.T) {
	edges, err := readEdges(strings.NewReader("5,6\n"))
	require.NoError(t, err)
	require.Len(t, edges, 1)
}

func TestReadEdgesRejectsBadLine(t *testing.T) {
	_, err := readEdges(strings.NewReader("1,2\nx,3\n"))
	require.ErrorContains(t, err, "line 2")

	_, err = readEdges(strings.NewReader("1,2,3\n"))
	require.Error(t, err)
}
