package utils

import (
	"context"
	"strings"
)

const (
	configurationFilePathContextKeyConstant = commandContextKey("configurationFilePath")
	batchNameContextKeyConstant             = commandContextKey("batchName")
)

type commandContextKey string

// CommandContextAccessor manages values stored in command execution contexts.
type CommandContextAccessor struct{}

// NewCommandContextAccessor constructs a CommandContextAccessor instance.
func NewCommandContextAccessor() CommandContextAccessor {
	return CommandContextAccessor{}
}

// WithConfigurationFilePath attaches the configuration file path to the provided context.
func (accessor CommandContextAccessor) WithConfigurationFilePath(parentContext context.Context, configurationFilePath string) context.Context {
	return accessor.withString(parentContext, configurationFilePathContextKeyConstant, configurationFilePath)
}

// ConfigurationFilePath extracts the configuration file path from the provided context.
func (accessor CommandContextAccessor) ConfigurationFilePath(executionContext context.Context) (string, bool) {
	return accessor.lookupString(executionContext, configurationFilePathContextKeyConstant)
}

// WithBatchName tags every run started under the returned context as part of the named batch.
func (accessor CommandContextAccessor) WithBatchName(parentContext context.Context, batchName string) context.Context {
	return accessor.withString(parentContext, batchNameContextKeyConstant, strings.TrimSpace(batchName))
}

// BatchName extracts the batch name from the provided context.
func (accessor CommandContextAccessor) BatchName(executionContext context.Context) (string, bool) {
	batchName, batchNameAvailable := accessor.lookupString(executionContext, batchNameContextKeyConstant)
	if !batchNameAvailable || len(batchName) == 0 {
		return "", false
	}
	return batchName, true
}

func (accessor CommandContextAccessor) withString(parentContext context.Context, key commandContextKey, value string) context.Context {
	if parentContext == nil {
		parentContext = context.Background()
	}
	return context.WithValue(parentContext, key, value)
}

func (accessor CommandContextAccessor) lookupString(executionContext context.Context, key commandContextKey) (string, bool) {
	if executionContext == nil {
		return "", false
	}
	value, valueAvailable := executionContext.Value(key).(string)
	if !valueAvailable {
		return "", false
	}
	return value, true
}
