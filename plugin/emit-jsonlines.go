package plugin

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	Nt "github.com/maroda/neurales/types"
)

// JSONLinesEmitter writes one JSON document per line, for the score command.
type JSONLinesEmitter struct {
	MU  sync.Mutex
	Enc *json.Encoder
}

func NewJSONLinesEmitter(w io.Writer) *JSONLinesEmitter {
	return &JSONLinesEmitter{Enc: json.NewEncoder(w)}
}

func (je *JSONLinesEmitter) Emit(_ context.Context, p *Nt.Payload) error {
	je.MU.Lock()
	defer je.MU.Unlock()
	return je.Enc.Encode(p)
}

func (je *JSONLinesEmitter) EmitError(_ context.Context, e Nt.ErrorPayload) error {
	je.MU.Lock()
	defer je.MU.Unlock()
	return je.Enc.Encode(e)
}

func (je *JSONLinesEmitter) Type() string { return "jsonlines" }
