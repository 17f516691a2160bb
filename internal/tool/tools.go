package tool

import "agent-vault-go/internal/model"

// 工具名
const (
	ToolCreateFolder        = "create_folder"
	ToolUploadFile          = "upload_file"
	ToolAttachFile          = "attach_file"
	ToolGetFolder           = "get_folder"
	ToolListFolderFiles     = "list_folder_files"
	ToolListMyFolders       = "list_my_folders"
	ToolSearchFilesByTag    = "search_files_by_tag"
	ToolSearchFilesByPrompt = "search_files_by_prompt"
	ToolGetBalance          = "get_balance"
)

// Definitions 返回所有工具的声明，供传输层列出。
func Definitions() []model.ToolDefinition {
	return []model.ToolDefinition{
		{
			Name:        ToolCreateFolder,
			Description: "Mint a new folder in the registry. The caller becomes its owner.",
			InputSchema: objectSchema(
				map[string]interface{}{
					"name":       stringProperty("Folder name"),
					"folderType": enumProperty("Folder category (default personal)", "personal", "work", "agent"),
					"isPublic":   boolProperty("Whether the folder is publicly readable"),
				},
				[]string{"name"},
			),
		},
		{
			Name:        ToolUploadFile,
			Description: "Upload a base64 encoded file to storage. If folderId is given the stored file is attached to that folder.",
			InputSchema: objectSchema(
				map[string]interface{}{
					"fileContent":     stringProperty("File bytes, base64 encoded"),
					"fileName":        stringProperty("File name including extension"),
					"folderId":        stringProperty("Optional folder id to attach the file to"),
					"withCreationFee": boolProperty("Override whether the dataset creation fee is paid"),
				},
				[]string{"fileContent", "fileName"},
			),
		},
		{
			Name:        ToolAttachFile,
			Description: "Attach an already stored content id to a folder you own.",
			InputSchema: objectSchema(
				map[string]interface{}{
					"folderId":  stringProperty("Folder id"),
					"contentId": stringProperty("Content identifier returned by upload_file"),
					"fileName":  stringProperty("File name to record"),
				},
				[]string{"folderId", "contentId", "fileName"},
			),
		},
		{
			Name:        ToolGetFolder,
			Description: "Get a folder's metadata.",
			InputSchema: objectSchema(
				map[string]interface{}{"folderId": stringProperty("Folder id")},
				[]string{"folderId"},
			),
		},
		{
			Name:        ToolListFolderFiles,
			Description: "List the files recorded in a folder, oldest first.",
			InputSchema: objectSchema(
				map[string]interface{}{"folderId": stringProperty("Folder id")},
				[]string{"folderId"},
			),
		},
		{
			Name:        ToolListMyFolders,
			Description: "List folders owned by an address (default: the caller).",
			InputSchema: objectSchema(
				map[string]interface{}{"address": stringProperty("Owner address")},
				nil,
			),
		},
		{
			Name:        ToolSearchFilesByTag,
			Description: "Find file records carrying a tag, e.g. a file extension.",
			InputSchema: objectSchema(
				map[string]interface{}{"tag": stringProperty("Tag to search for")},
				[]string{"tag"},
			),
		},
		{
			Name:        ToolSearchFilesByPrompt,
			Description: "Semantic search over stored files using a natural language prompt.",
			InputSchema: objectSchema(
				map[string]interface{}{
					"query":    stringProperty("Natural language query"),
					"folderId": stringProperty("Optional folder id to restrict the search"),
				},
				[]string{"query"},
			),
		},
		{
			Name:        ToolGetBalance,
			Description: "Number of folders owned by an address (default: the caller).",
			InputSchema: objectSchema(
				map[string]interface{}{"address": stringProperty("Owner address")},
				nil,
			),
		},
	}
}

// Schema helpers

func objectSchema(properties map[string]interface{}, required []string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
	}
}

func boolProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "boolean",
		"description": description,
	}
}

func enumProperty(description string, values ...string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
		"enum":        values,
	}
}
