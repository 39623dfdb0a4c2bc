// Package domain defines the room and message model for turn-based AI
// game sessions: lifecycle status, turn phase, message types, and the
// constants shared with the session store key space.
package domain
