package svc

import "errors"

// ErrStorageInitFailed 错误：存储初始化失败
var ErrStorageInitFailed = errors.New("storage initialization failed")

// ErrInvalidProgram 错误：配置中的程序地址无法解析
var ErrInvalidProgram = errors.New("invalid program address")
