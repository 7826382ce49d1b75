package apis

// DataStore is a source of datasets known to the backend.
type DataStore struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	DataSources []DataSource `json:"dataSources,omitempty"`
}

// DataSource is one dataset of a DataStore.
type DataSource struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	MetaInfo map[string]any `json:"meta_info"`
}

// Operation describes a processing operation the backend can run.
type Operation struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	Inputs      []OperationInput  `json:"inputs"`
	Outputs     []OperationOutput `json:"outputs"`
}

// OperationInput is a named parameter of an Operation.
type OperationInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	DataType    string `json:"dataType"`
	ValueSet    []any  `json:"valueSet,omitempty"`
	ValueRange  []any  `json:"valueRange,omitempty"`
}

// OperationOutput is a named result of an Operation.
type OperationOutput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	DataType    string `json:"dataType"`
}

// Workspace is the server-side state of an open workspace.
type Workspace struct {
	BaseDir  string          `json:"baseDir"`
	Path     string          `json:"path,omitempty"`
	IsOpen   bool            `json:"isOpen"`
	IsSaved  bool            `json:"isSaved"`
	Files    []WorkspaceFile `json:"files,omitempty"`
	Workflow Workflow        `json:"workflow"`
}

// WorkspaceFile is a file referenced by a Workspace.
type WorkspaceFile struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Path string `json:"path"`
}

// Workflow lists the resources and steps of a Workspace.
type Workflow struct {
	Resources []WorkflowNode `json:"resources"`
	Steps     []WorkflowNode `json:"steps"`
}

// WorkflowNode is a resource or step of a Workflow.
type WorkflowNode struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// ImageStatistics summarizes the values of a workspace variable.
type ImageStatistics struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// ColorMapCategory groups related color maps.
type ColorMapCategory struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	ColorMaps   []ColorMap `json:"colorMaps"`
}

// ColorMap is a named color map with a base64 PNG preview.
type ColorMap struct {
	Name      string `json:"name"`
	ImageData string `json:"imageData"`
}
