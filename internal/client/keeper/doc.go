// Package keeper is a typed client for the chatkeeper.v1.ChatKeeper gRPC
// service. Request and response bodies travel as google.protobuf.Struct and
// are mapped onto the server's model types through their JSON form.
package keeper
