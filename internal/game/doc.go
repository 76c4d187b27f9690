// Package game holds the scheduler's consumers: spell casts, movement
// locks and sound fades. Each one keeps a single *scheduler.Handle and
// derives its progress from the handle's remaining fraction, so all of
// them must be used on the loop goroutine.
package game
