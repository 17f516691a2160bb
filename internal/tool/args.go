package tool

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"agent-vault-go/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

var validate = validator.New()

type createFolderArgs struct {
	Name       string `mapstructure:"name" validate:"required,max=255"`
	FolderType string `mapstructure:"folderType" validate:"omitempty,oneof=personal work agent"`
	IsPublic   bool   `mapstructure:"isPublic"`
}

type uploadFileArgs struct {
	FileContent     string `mapstructure:"fileContent" validate:"required"`
	FileName        string `mapstructure:"fileName" validate:"required,max=255"`
	FolderID        string `mapstructure:"folderId" validate:"omitempty,numeric"`
	WithCreationFee *bool  `mapstructure:"withCreationFee"`
}

type attachFileArgs struct {
	FolderID  string `mapstructure:"folderId" validate:"required,numeric"`
	ContentID string `mapstructure:"contentId" validate:"required"`
	FileName  string `mapstructure:"fileName" validate:"required,max=255"`
}

type folderArgs struct {
	FolderID string `mapstructure:"folderId" validate:"required,numeric"`
}

type addressArgs struct {
	Address string `mapstructure:"address" validate:"omitempty,eth_addr"`
}

type tagArgs struct {
	Tag string `mapstructure:"tag" validate:"required,max=64"`
}

type promptArgs struct {
	Query    string `mapstructure:"query" validate:"required"`
	FolderID string `mapstructure:"folderId" validate:"omitempty,numeric"`
}

// decodeArgs 把原始参数解码到 out 并校验。数字与字符串之间做宽松转换，
// 所以 folderId 既可以是 "42" 也可以是 42。
func decodeArgs(raw map[string]interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      false,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("%w: %v", service.ErrValidation, err)
	}
	if err := validate.Struct(out); err != nil {
		return fmt.Errorf("%w: %s", service.ErrValidation, describeValidation(err))
	}
	return nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := lowerFirst(fe.Field())
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s]", field, fe.Param()))
		case "numeric":
			msgs = append(msgs, field+" must be a numeric id")
		case "eth_addr":
			msgs = append(msgs, field+" must be a 0x-prefixed address")
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s validation", field, fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

// 校验错误里的字段名是 Go 字段名，这里转成参数名的写法
func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	switch s {
	case "FolderID":
		return "folderId"
	case "ContentID":
		return "contentId"
	}
	return strings.ToLower(s[:1]) + s[1:]
}

func parseFolderID(s string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: folderId %q is not a valid id", service.ErrValidation, s)
	}
	return id, nil
}

// decodeContent 解码 base64 文件内容，带或不带 padding 都可以。
func decodeContent(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if data, err := base64.StdEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	data, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return nil, fmt.Errorf("%w: fileContent is not valid base64", service.ErrValidation)
	}
	return data, nil
}

// redactArgs 返回可回显给调用方的参数副本，文件内容只保留长度。
func redactArgs(raw map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(raw))
	for k, v := range raw {
		if k == "fileContent" {
			if s, ok := v.(string); ok {
				out[k] = fmt.Sprintf("<%d base64 chars>", len(s))
				continue
			}
		}
		out[k] = v
	}
	return out
}
