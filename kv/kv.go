// Package kv is a small local key/value cache with change notification.
// Keys are namespaced as "<topic>:<rest>"; every Set notifies the subscribers
// of the key's topic.
package kv

import (
	"strings"
	"sync"
)

type Store interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte)
	// Subscribe registers handler for changes under topic and returns a
	// function that removes it.
	Subscribe(topic string, handler func(key string)) func()
}

// Topic returns the namespace of key.
func Topic(key string) string {
	topic, _, _ := strings.Cut(key, ":")
	return topic
}

type subscriber struct {
	id int
	fn func(key string)
}

type Memory struct {
	mu     sync.RWMutex
	values map[string][]byte
	subs   map[string][]subscriber
	nextID int
}

func NewMemory() *Memory {
	return &Memory{
		values: make(map[string][]byte),
		subs:   make(map[string][]subscriber),
	}
}

func (m *Memory) Get(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), v...), true
}

// Set stores value and then calls the topic's handlers synchronously.
func (m *Memory) Set(key string, value []byte) {
	topic := Topic(key)

	m.mu.Lock()
	m.values[key] = append([]byte(nil), value...)
	handlers := make([]func(string), 0, len(m.subs[topic]))
	for _, s := range m.subs[topic] {
		handlers = append(handlers, s.fn)
	}
	m.mu.Unlock()

	for _, fn := range handlers {
		fn(key)
	}
}

func (m *Memory) Subscribe(topic string, handler func(key string)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.subs[topic] = append(m.subs[topic], subscriber{id: id, fn: handler})

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		subs := m.subs[topic]
		for i, s := range subs {
			if s.id == id {
				m.subs[topic] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
	}
}
