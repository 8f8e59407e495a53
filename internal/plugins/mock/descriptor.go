package mock

import (
	"github.com/nerrad567/gray-logic-hub/internal/hardware"
	"github.com/nerrad567/gray-logic-hub/internal/integrations"
)

// Plugin, vendor and class ids.
const (
	PluginID      = "57d6b5c6-3dc3-4bff-b04f-972cf62bcff9"
	VendorID      = "28feed36-5f15-4547-9763-d09ca62fdd47"
	MockClassID   = "27e09fae-5d48-4c38-ad26-c6a677f3b9b0"
	ParentClassID = "65b5b1af-451a-46d9-9ffe-642bb9487691"
	ChildClassID  = "870d1520-2579-477b-9dd1-c135928445c0"
)

// Mock class param, state, event and action ids.
const (
	ParamAsync  = "da09c9bf-7a2c-48a8-86f7-c101fa8dac36"
	ParamBroken = "e8788094-9095-4191-a843-f8243b4af636"

	DiscoveryParamResultCount = "6e6e99be-a5a0-4ce5-bdc2-ca6c74d8ce27"

	StatePower      = "4a4402e6-7686-42fb-9e55-5b4e6f8e945d"
	StateBrightness = "4ad10a33-c011-4f22-b32e-f2e9f6ec8675"
	StateCounter    = "504c1de6-778e-493f-871c-c8140f1d578a"

	EventPressed = "6cc20447-289b-4ccb-9118-87b85e71db82"

	// Writable states double as the action that sets them.
	ActionPower       = StatePower
	ActionBrightness  = StateBrightness
	ActionPress       = "8eb437f7-e58b-4086-aa4b-92952518db4f"
	ActionFail        = "c41ccaff-ed51-4682-923d-316720472cb2"
	ActionAsync       = "af155a7a-13eb-4477-ae6f-b3dd7049c583"
	ActionTimeout     = "876c8a07-7ec7-4b59-847b-d948f5d02d14"
	ActionParamPower  = "78ea0eab-ed41-4ed0-9520-2f35d0fc7521"
	ActionParamBright = "efb66ab0-1660-484f-a0bd-73414d78c146"

	ChildStatePower = "dbbf29fd-28e9-4499-9f7a-252555086d94"
)

func descriptor() integrations.PluginDescriptor {
	return integrations.PluginDescriptor{
		ID:          PluginID,
		Name:        "mock",
		DisplayName: "Mock devices",
		Vendors:     []integrations.Vendor{{ID: VendorID, Name: "graylogic", DisplayName: "Gray Logic"}},
		Resources:   []hardware.Resource{hardware.Timer},
		ThingClasses: []integrations.ThingClass{
			{
				ID:            MockClassID,
				VendorID:      VendorID,
				Name:          "mock",
				DisplayName:   "Mock device",
				CreateMethods: []integrations.CreateMethod{integrations.CreateUser, integrations.CreateDiscovery},
				ParamTypes: []integrations.ParamType{
					{ID: ParamAsync, Name: "async", Type: integrations.TypeBool, DefaultValue: false},
					{ID: ParamBroken, Name: "broken", Type: integrations.TypeBool, DefaultValue: false},
				},
				DiscoveryParamTypes: []integrations.ParamType{
					{ID: DiscoveryParamResultCount, Name: "resultCount", Type: integrations.TypeInt, DefaultValue: 2, MinValue: 0, MaxValue: 20},
				},
				StateTypes: []integrations.StateType{
					{ID: StatePower, Name: "power", Type: integrations.TypeBool, DefaultValue: false, Writable: true},
					{ID: StateBrightness, Name: "brightness", Type: integrations.TypeInt, DefaultValue: 50, Unit: "%", Writable: true},
					{ID: StateCounter, Name: "counter", Type: integrations.TypeInt, DefaultValue: 0},
				},
				EventTypes: []integrations.EventType{{ID: EventPressed, Name: "pressed"}},
				ActionTypes: []integrations.ActionType{
					{ID: ActionPower, Name: "power", ParamTypes: []integrations.ParamType{
						{ID: ActionParamPower, Name: "power", Type: integrations.TypeBool},
					}},
					{ID: ActionBrightness, Name: "brightness", ParamTypes: []integrations.ParamType{
						{ID: ActionParamBright, Name: "brightness", Type: integrations.TypeInt, MinValue: 0, MaxValue: 100},
					}},
					{ID: ActionPress, Name: "press"},
					{ID: ActionFail, Name: "fail"},
					{ID: ActionAsync, Name: "asyncAction"},
					{ID: ActionTimeout, Name: "timeout"},
				},
			},
			{
				ID:          ParentClassID,
				VendorID:    VendorID,
				Name:        "mockParent",
				DisplayName: "Mock parent",
			},
			{
				ID:            ChildClassID,
				VendorID:      VendorID,
				Name:          "mockChild",
				DisplayName:   "Mock child",
				CreateMethods: []integrations.CreateMethod{integrations.CreateAuto},
				StateTypes: []integrations.StateType{
					{ID: ChildStatePower, Name: "power", Type: integrations.TypeBool, DefaultValue: false},
				},
			},
		},
	}
}
