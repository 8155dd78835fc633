package handlers

import (
	"bytes"
	"sync"

	"github.com/rs/zerolog/log"
)

// responseBufferPool provides reusable byte buffers for JSON encoding,
// reducing GC pressure on the hot result-polling path.
var responseBufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 1024))
	},
}

// getResponseBuffer retrieves a response buffer from the pool.
func getResponseBuffer() *bytes.Buffer {
	v := responseBufferPool.Get()
	buf, ok := v.(*bytes.Buffer)
	if !ok {
		log.Warn().Interface("got_type", v).Msg("Unexpected type from response buffer pool")
		return bytes.NewBuffer(make([]byte, 0, 1024))
	}
	return buf
}

// putResponseBuffer returns a response buffer to the pool after resetting it.
func putResponseBuffer(buf *bytes.Buffer) {
	buf.Reset()
	responseBufferPool.Put(buf)
}
