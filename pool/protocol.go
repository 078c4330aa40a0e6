package pool

import "encoding/json"

// request is a line-delimited JSON-RPC 2.0 request or notification
// exchanged over a Stratum v1 connection.
type request struct {
	ID     uint64        `json:"id"`
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

// response is a line-delimited JSON-RPC 2.0 response, correlated to
// its request by ID.
type response struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int
	Message string
	Data    json.RawMessage
}

// UnmarshalJSON accepts both the common [code, message, data?] array
// shape and an object shape, since pools disagree on the wire format.
func (e *rpcError) UnmarshalJSON(b []byte) error {
	var arr []json.RawMessage
	if err := json.Unmarshal(b, &arr); err == nil {
		if len(arr) > 0 {
			json.Unmarshal(arr[0], &e.Code)
		}
		if len(arr) > 1 {
			json.Unmarshal(arr[1], &e.Message)
		}
		if len(arr) > 2 {
			e.Data = arr[2]
		}
		return nil
	}

	var obj struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	e.Code = obj.Code
	e.Message = obj.Message
	e.Data = obj.Data
	return nil
}

const (
	methodSubscribe     = "mining.subscribe"
	methodAuthorize     = "mining.authorize"
	methodNotify        = "mining.notify"
	methodSetDifficulty = "mining.set_difficulty"
	methodSetExtranonce = "mining.set_extranonce"
	methodSubmit        = "mining.submit"
	methodReconnect     = "client.reconnect"
	methodSuggestDiff   = "mining.suggest_difficulty"
)

// notifyParams is the parsed payload of a mining.notify call.
type notifyParams struct {
	JobID          string
	PrevHash       string
	Coinbase1      string
	Coinbase2      string
	MerkleBranches []string
	Version        string
	NBits          string
	NTime          string
	CleanJobs      bool
}

func parseNotifyParams(raw []interface{}) (notifyParams, error) {
	var np notifyParams
	if len(raw) != 9 {
		return np, errParamCount("mining.notify", 9, len(raw))
	}

	var ok bool
	if np.JobID, ok = raw[0].(string); !ok {
		return np, errParamType("mining.notify", "job_id")
	}
	if np.PrevHash, ok = raw[1].(string); !ok {
		return np, errParamType("mining.notify", "prevhash")
	}
	if np.Coinbase1, ok = raw[2].(string); !ok {
		return np, errParamType("mining.notify", "coinb1")
	}
	if np.Coinbase2, ok = raw[3].(string); !ok {
		return np, errParamType("mining.notify", "coinb2")
	}
	branches, ok := raw[4].([]interface{})
	if !ok {
		return np, errParamType("mining.notify", "merkle_branches")
	}
	for _, b := range branches {
		s, ok := b.(string)
		if !ok {
			return np, errParamType("mining.notify", "merkle_branch")
		}
		np.MerkleBranches = append(np.MerkleBranches, s)
	}
	if np.Version, ok = raw[5].(string); !ok {
		return np, errParamType("mining.notify", "version")
	}
	if np.NBits, ok = raw[6].(string); !ok {
		return np, errParamType("mining.notify", "nbits")
	}
	if np.NTime, ok = raw[7].(string); !ok {
		return np, errParamType("mining.notify", "ntime")
	}
	if np.CleanJobs, ok = raw[8].(bool); !ok {
		return np, errParamType("mining.notify", "clean_jobs")
	}
	return np, nil
}

// subscribeResult is the parsed payload of a successful
// mining.subscribe response.
type subscribeResult struct {
	Extranonce1     string
	Extranonce2Size int
}

func parseSubscribeResult(raw json.RawMessage) (subscribeResult, error) {
	var res subscribeResult
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil {
		return res, err
	}
	if len(arr) != 3 {
		return res, errParamCount("mining.subscribe result", 3, len(arr))
	}

	var extranonce1 string
	if err := json.Unmarshal(arr[1], &extranonce1); err != nil {
		return res, errParamType("mining.subscribe result", "extranonce1")
	}
	res.Extranonce1 = extranonce1

	var size float64
	if err := json.Unmarshal(arr[2], &size); err != nil {
		return res, errParamType("mining.subscribe result", "extranonce2_size")
	}
	res.Extranonce2Size = int(size)

	return res, nil
}
