// Package proto holds the protobuf source for the internal LLM RPC
// surface. Generated stubs (llm.pb.go, llm_grpc.pb.go) land alongside
// this file under protoc's usual convention and are imported by
// pkg/llm as "github.com/devctrl/orchestrator/proto/llmpb".
package proto

//go:generate protoc --go_out=. --go_opt=paths=source_relative --go-grpc_out=. --go-grpc_opt=paths=source_relative llm.proto
