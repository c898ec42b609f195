package service

import "math/rand"

type systemRand struct{}

func (systemRand) Intn(n int) int { return rand.Intn(n) }

// NewRand returns the default random source backed by math/rand's
// auto-seeded global generator, which is safe for concurrent use
func NewRand() Rand { return systemRand{} }
