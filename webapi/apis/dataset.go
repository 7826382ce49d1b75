package apis

import (
	"encoding/json"

	"github.com/shaharia-lab/cate/webapi"
)

// DatasetAPI lists data stores and their data sources.
type DatasetAPI struct {
	caller Caller
}

// NewDatasetAPI creates a DatasetAPI calling through caller.
func NewDatasetAPI(caller Caller) *DatasetAPI {
	return &DatasetAPI{caller: caller}
}

// GetDataStores requests the data stores known to the backend.
func (a *DatasetAPI) GetDataStores() *webapi.Job {
	return a.caller.Call("get_data_stores", []any{}, nil)
}

// GetDataSources may take a while for remote stores; onProgress reports it.
func (a *DatasetAPI) GetDataSources(dataStoreID string, onProgress webapi.ProgressHandler) *webapi.Job {
	return a.caller.Call("get_data_sources", []any{dataStoreID}, onProgress)
}

// GetOperations requests the registered operations.
func (a *DatasetAPI) GetOperations() *webapi.Job {
	return a.caller.Call("get_operations", []any{}, nil)
}

// DecodeDataStores decodes the response of GetDataStores.
func DecodeDataStores(raw json.RawMessage) ([]DataStore, error) {
	return decode[[]DataStore]("get_data_stores", raw)
}

// DecodeDataSources decodes the response of GetDataSources.
func DecodeDataSources(raw json.RawMessage) ([]DataSource, error) {
	return decode[[]DataSource]("get_data_sources", raw)
}

// DecodeOperations decodes the response of GetOperations.
func DecodeOperations(raw json.RawMessage) ([]Operation, error) {
	return decode[[]Operation]("get_operations", raw)
}
