// Package resocket defines the contracts shared by the resilient socket and
// its transports.
//
// A Socket (see package socket) wraps one Transport at a time. Transports are
// created by a Dialer and report inbound activity back to the socket through a
// TransportHandler. Callers observe the socket through the Observer interface
// and customize the message pipeline with the TransformFunc, EncodeFunc,
// DecodeFunc and IdentifyFunc hooks.
package resocket
