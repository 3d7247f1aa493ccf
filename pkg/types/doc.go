// Package types defines the value types shared by the agent and the server:
// probe samples, badges, usage counters and the entity snapshot the agent
// ships after every monitoring cycle.
package types
