package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeExister map[string]bool

func (f fakeExister) Exists(path string) bool {
	return f[path]
}

func TestNextAvailableSkipsExistingSingleLetter(t *testing.T) {
	e := fakeExister{"/dev/xvdb": true, "/dev/xvdc": true}
	path, ok := NextAvailable(e)
	assert.True(t, ok)
	assert.Equal(t, "/dev/xvdd", path)
}

func TestNextAvailableFallsBackToTwoLetter(t *testing.T) {
	e := fakeExister{}
	for c := 'b'; c <= 'z'; c++ {
		e[string([]rune{'/', 'd', 'e', 'v', '/', 'x', 'v', 'd', c})] = true
	}
	path, ok := NextAvailable(e)
	assert.True(t, ok)
	assert.Equal(t, "/dev/xvdba", path)
}

func TestNextAvailableExhausted(t *testing.T) {
	e := fakeExister{}
	for c := 'b'; c <= 'z'; c++ {
		e[fullPath(c)] = true
		for d := 'a'; d <= 'z'; d++ {
			e[fullPath2(c, d)] = true
		}
	}
	_, ok := NextAvailable(e)
	assert.False(t, ok)
}

func fullPath(c rune) string {
	return "/dev/xvd" + string(c)
}

func fullPath2(c, d rune) string {
	return "/dev/xvd" + string(c) + string(d)
}
