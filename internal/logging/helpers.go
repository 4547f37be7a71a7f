package logging

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// These are no-ops if the category is disabled
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).Info(format, args...)
}

// BootDebug logs debug to the boot category
func BootDebug(format string, args ...interface{}) {
	Get(CategoryBoot).Debug(format, args...)
}

// BootError logs an error to the boot category
func BootError(format string, args ...interface{}) {
	Get(CategoryBoot).Error(format, args...)
}

// Session logs to the session category
func Session(format string, args ...interface{}) {
	Get(CategorySession).Info(format, args...)
}

// SessionDebug logs debug to the session category
func SessionDebug(format string, args ...interface{}) {
	Get(CategorySession).Debug(format, args...)
}

// SessionError logs an error to the session category
func SessionError(format string, args ...interface{}) {
	Get(CategorySession).Error(format, args...)
}

// API logs to the api category
func API(format string, args ...interface{}) {
	Get(CategoryAPI).Info(format, args...)
}

// APIDebug logs debug to the api category
func APIDebug(format string, args ...interface{}) {
	Get(CategoryAPI).Debug(format, args...)
}

// APIWarn logs a warning to the api category
func APIWarn(format string, args ...interface{}) {
	Get(CategoryAPI).Warn(format, args...)
}

// APIError logs an error to the api category
func APIError(format string, args ...interface{}) {
	Get(CategoryAPI).Error(format, args...)
}

// Agent logs to the agent category
func Agent(format string, args ...interface{}) {
	Get(CategoryAgent).Info(format, args...)
}

// AgentDebug logs debug to the agent category
func AgentDebug(format string, args ...interface{}) {
	Get(CategoryAgent).Debug(format, args...)
}

// AgentWarn logs a warning to the agent category
func AgentWarn(format string, args ...interface{}) {
	Get(CategoryAgent).Warn(format, args...)
}

// AgentError logs an error to the agent category
func AgentError(format string, args ...interface{}) {
	Get(CategoryAgent).Error(format, args...)
}

// Tools logs to the tools category
func Tools(format string, args ...interface{}) {
	Get(CategoryTools).Info(format, args...)
}

// ToolsDebug logs debug to the tools category
func ToolsDebug(format string, args ...interface{}) {
	Get(CategoryTools).Debug(format, args...)
}

// ToolsError logs an error to the tools category
func ToolsError(format string, args ...interface{}) {
	Get(CategoryTools).Error(format, args...)
}

// Context logs to the context category
func Context(format string, args ...interface{}) {
	Get(CategoryContext).Info(format, args...)
}

// ContextDebug logs debug to the context category
func ContextDebug(format string, args ...interface{}) {
	Get(CategoryContext).Debug(format, args...)
}

// ContextWarn logs a warning to the context category
func ContextWarn(format string, args ...interface{}) {
	Get(CategoryContext).Warn(format, args...)
}

// Memory logs to the memory category
func Memory(format string, args ...interface{}) {
	Get(CategoryMemory).Info(format, args...)
}

// MemoryDebug logs debug to the memory category
func MemoryDebug(format string, args ...interface{}) {
	Get(CategoryMemory).Debug(format, args...)
}

// MemoryError logs an error to the memory category
func MemoryError(format string, args ...interface{}) {
	Get(CategoryMemory).Error(format, args...)
}

// Skills logs to the skills category
func Skills(format string, args ...interface{}) {
	Get(CategorySkills).Info(format, args...)
}

// SkillsDebug logs debug to the skills category
func SkillsDebug(format string, args ...interface{}) {
	Get(CategorySkills).Debug(format, args...)
}

// Workspace logs to the workspace category
func Workspace(format string, args ...interface{}) {
	Get(CategoryWorkspace).Info(format, args...)
}

// WorkspaceDebug logs debug to the workspace category
func WorkspaceDebug(format string, args ...interface{}) {
	Get(CategoryWorkspace).Debug(format, args...)
}

// WorkspaceError logs an error to the workspace category
func WorkspaceError(format string, args ...interface{}) {
	Get(CategoryWorkspace).Error(format, args...)
}

// Watcher logs to the watcher category
func Watcher(format string, args ...interface{}) {
	Get(CategoryWatcher).Info(format, args...)
}

// WatcherDebug logs debug to the watcher category
func WatcherDebug(format string, args ...interface{}) {
	Get(CategoryWatcher).Debug(format, args...)
}
