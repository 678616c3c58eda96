// Package codec provides ready-made message hooks for sockets: codecs that
// map payloads to frames and back, transforms that enrich outgoing payloads,
// and identify predicates that pair replies with the payloads they answer.
//
//	id, _ := codec.JQIdentify(".id == $sent.id")
//	s, err := socket.NewSocket().
//		WithURL(url).
//		WithCodec(codec.JSON()).
//		WithTransform(codec.StampRequestID("id")).
//		WithIdentify(id).
//		Build()
package codec
