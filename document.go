package mongo

import "github.com/neisanworks/neisan-mongo/codec"

// Document is a decoded document: a keyed collection of values, possibly
// holding extended kinds (codec.Set, codec.OrderedMap, codec.Instant, []byte).
type Document = codec.Document

// ID is a unique-identifier reference to a document.
type ID = codec.ID

// IDField is the identifier field name of every stored document.
const IDField = codec.IDField
