package server

import (
	"context"
	"fmt"
	"reflect"
	"unicode"
	"unicode/utf8"

	"ssb-rpc/message"
)

type methodType struct {
	method    reflect.Method
	ArgType   reflect.Type
	ReplyType reflect.Type // nil for sources
}

type service struct {
	name   string
	rcvr   reflect.Value
	typ    reflect.Type
	method map[string]*methodType
}

var (
	errorType = reflect.TypeOf((*error)(nil)).Elem()
	emitType  = reflect.TypeOf((func(any) error)(nil))
)

// NewService 创建 service 并扫描所有合法方法
func NewService(name string, rcvr any) (*service, error) {
	typ := reflect.TypeOf(rcvr)
	if typ.Kind() != reflect.Ptr {
		return nil, fmt.Errorf("rpc: rcvr must be a pointer, got %s", typ.Kind())
	}
	if typ.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("rpc: rcvr must point to a struct, got %s", typ.Elem().Kind())
	}
	srv := &service{
		name:   name,
		rcvr:   reflect.ValueOf(rcvr),
		typ:    typ,
		method: make(map[string]*methodType),
	}
	srv.RegisterMethods()
	if len(srv.method) == 0 {
		return nil, fmt.Errorf("rpc: %s has no methods of a callable shape", typ)
	}
	return srv, nil
}

// RegisterMethods 扫描 struct 的导出方法，过滤出符合 RPC 签名的:
//
//	func (r *T) Name(args *Args, reply *Reply) error       → async "name"
//	func (r *T) Name(args *Args, emit func(any) error) error → source "name"
func (s *service) RegisterMethods() {
	for i := 0; i < s.typ.NumMethod(); i++ {
		method := s.typ.Method(i)
		mt := method.Type
		if mt.NumIn() != 3 || mt.NumOut() != 1 || mt.Out(0) != errorType || mt.In(1).Kind() != reflect.Ptr {
			continue
		}

		switch {
		case mt.In(2) == emitType:
			s.method[lowerFirst(method.Name)] = &methodType{
				method:  method,
				ArgType: mt.In(1).Elem(),
			}
		case mt.In(2).Kind() == reflect.Ptr:
			s.method[lowerFirst(method.Name)] = &methodType{
				method:    method,
				ArgType:   mt.In(1).Elem(),
				ReplyType: mt.In(2).Elem(),
			}
		}
	}
}

// Call 通过反射调用方法
func (s *service) Call(mType *methodType, argv, second reflect.Value) error {
	args := [3]reflect.Value{s.rcvr, argv, second}
	results := mType.method.Func.Call(args[:])
	if !results[0].IsNil() {
		return results[0].Interface().(error)
	}
	return nil
}

// handlers turns every scanned method into a registered handler.
func (s *service) handlers() map[string]*handler {
	out := make(map[string]*handler, len(s.method))
	for name, mType := range s.method {
		full := name
		if s.name != "" {
			full = s.name + "." + name
		}
		mType := mType
		if mType.ReplyType == nil {
			out[full] = &handler{source: func(ctx context.Context, req *message.Request, emit func(any) error) error {
				argv := reflect.New(mType.ArgType)
				if err := req.Arg(0, argv.Interface()); err != nil {
					return err
				}
				return s.Call(mType, argv, reflect.ValueOf(emit))
			}}
			continue
		}
		out[full] = &handler{async: func(ctx context.Context, req *message.Request) (any, error) {
			argv := reflect.New(mType.ArgType)
			replyv := reflect.New(mType.ReplyType)
			if err := req.Arg(0, argv.Interface()); err != nil {
				return nil, err
			}
			if err := s.Call(mType, argv, replyv); err != nil {
				return nil, err
			}
			return replyv.Interface(), nil
		}}
	}
	return out
}

func lowerFirst(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	return string(unicode.ToLower(r)) + s[n:]
}
