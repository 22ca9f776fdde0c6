// Package syncmap wraps sync.Map with type parameters.
package syncmap

import "sync"

type SyncMap[K comparable, V any] struct {
	_map *sync.Map
}

func New[K comparable, V any]() SyncMap[K, V] {
	return SyncMap[K, V]{
		_map: &sync.Map{},
	}
}

func (sm SyncMap[K, V]) Set(key K, value V) {
	sm._map.Store(key, value)
}

func (sm SyncMap[K, V]) Lookup(key K) (value V, ok bool) {
	v, has := sm._map.Load(key)
	if !has {
		return value, false
	}
	return v.(V), true
}

// Pop deletes key and returns the value it held. Only one of many concurrent callers
// for the same key gets ok == true.
func (sm SyncMap[K, V]) Pop(key K) (value V, ok bool) {
	v, loaded := sm._map.LoadAndDelete(key)
	if !loaded {
		return value, false
	}
	return v.(V), true
}

func (sm SyncMap[K, V]) Delete(key K) {
	sm._map.Delete(key)
}

func (sm SyncMap[K, V]) Range(f func(key K, value V) bool) {
	sm._map.Range(func(k, v any) bool {
		return f(k.(K), v.(V))
	})
}

func (sm SyncMap[K, V]) Len() int {
	n := 0
	sm._map.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
