package ledgerv1

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// CodecName задаёт content-subtype JSON-кодека (application/grpc+json).
const CodecName = "json"

func init() {
	encoding.RegisterCodec(Codec{})
}

// Codec сериализует сообщения ledger.v1 в JSON.
type Codec struct{}

// Marshal кодирует сообщение.
func (Codec) Marshal(v any) ([]byte, error) {
	if v == nil {
		return nil, fmt.Errorf("ledgerv1 codec: nil message")
	}
	return json.Marshal(v)
}

// Unmarshal декодирует сообщение; пустое тело оставляет нулевое значение.
func (Codec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// Name возвращает имя кодека.
func (Codec) Name() string {
	return CodecName
}

// CallOption выбирает JSON-кодек для исходящих вызовов.
func CallOption() grpc.CallOption {
	return grpc.CallContentSubtype(CodecName)
}
