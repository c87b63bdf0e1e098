package codec

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cocosip/go-dicom/pkg/dicom/transfer"
)

// Registry maps transfer syntax UIDs and codec names to payload codecs
type Registry struct {
	mu     sync.RWMutex
	byUID  map[string]Codec
	byName map[string]string // name -> UID
}

var defaultRegistry = NewRegistry()

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		byUID:  make(map[string]Codec),
		byName: make(map[string]string),
	}
}

// Register adds c to the default registry
func Register(c Codec) {
	defaultRegistry.Register(c)
}

// Get looks up a codec of the default registry by UID or name
func Get(nameOrUID string) (Codec, error) {
	return defaultRegistry.Get(nameOrUID)
}

// ForPayload returns the default registry codec for a payload
func ForPayload(transferSyntaxUID string, encapsulated bool) (Codec, error) {
	return defaultRegistry.ForPayload(transferSyntaxUID, encapsulated)
}

// List returns the codecs of the default registry
func List() []Codec {
	return defaultRegistry.List()
}

// Register adds c under its UID and name. A later codec for the same UID
// replaces the earlier one.
func (r *Registry) Register(c Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.byUID[c.UID()]; ok && old.Name() != c.Name() {
		delete(r.byName, old.Name())
	}
	r.byUID[c.UID()] = c
	r.byName[c.Name()] = c.UID()
}

// Get looks up a codec by transfer syntax UID, then by name
func (r *Registry) Get(nameOrUID string) (Codec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if c, ok := r.byUID[nameOrUID]; ok {
		return c, nil
	}
	if uid, ok := r.byName[nameOrUID]; ok {
		return r.byUID[uid], nil
	}
	return nil, fmt.Errorf("%w: %s", ErrCodecNotFound, nameOrUID)
}

// ForPayload picks the codec for a stored payload. Native payloads of any
// uncompressed transfer syntax share the Explicit VR Little Endian codec;
// a missing UID is treated as native.
func (r *Registry) ForPayload(transferSyntaxUID string, encapsulated bool) (Codec, error) {
	uid := transferSyntaxUID
	if uid == "" || (!encapsulated && uid != transfer.RLELossless.UID().UID()) {
		uid = transfer.ExplicitVRLittleEndian.UID().UID()
	}
	return r.Get(uid)
}

// List returns the registered codecs ordered by UID
func (r *Registry) List() []Codec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	uids := make([]string, 0, len(r.byUID))
	for uid := range r.byUID {
		uids = append(uids, uid)
	}
	sort.Strings(uids)

	codecs := make([]Codec, 0, len(uids))
	for _, uid := range uids {
		codecs = append(codecs, r.byUID[uid])
	}
	return codecs
}
