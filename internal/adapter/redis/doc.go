// Package redis implements the record snapshot cache on top of go-redis.
package redis
